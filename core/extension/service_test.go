package extension_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
	"github.com/trezcool/masomo-materials/testutil"
)

type fixtures struct {
	env          *testutil.Env
	admin        user.User
	teacher      user.User
	otherTeacher user.User
	student      user.User
	student2     user.User
	cls          class.Class
	video        material.Material
	pdf          material.Material
}

func setup(t *testing.T, now *time.Time) fixtures {
	material.NowFunc = testutil.FixedClock(now)
	class.NowFunc = testutil.FixedClock(now)
	extension.NowFunc = testutil.FixedClock(now)
	t.Cleanup(func() {
		material.NowFunc = time.Now
		class.NowFunc = time.Now
		extension.NowFunc = time.Now
	})

	env := testutil.NewEnv()
	f := fixtures{env: env}
	f.admin = testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	f.teacher = testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	f.otherTeacher = testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@test.cd", "", []string{user.RoleTeacher}, true)
	f.student = testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	f.student2 = testutil.CreateUser(t, env.UserRepo, "Zero", "zero", "zero@test.cd", "", []string{user.RoleStudent}, true)
	f.cls = testutil.CreateClass(t, env.ClassRepo, "Maths", f.teacher.ID)
	testutil.Subscribe(t, env.ClassRepo, f.cls.ID, f.student.ID, true, time.Time{})
	testutil.Subscribe(t, env.ClassRepo, f.cls.ID, f.student2.ID, true, time.Time{})
	f.video = testutil.CreateMaterial(t, env.MaterialRepo, f.cls.ID, "Lesson 1", material.TypeVideo)
	f.pdf = testutil.CreateMaterial(t, env.MaterialRepo, f.cls.ID, "Notes 1", material.TypePDF)
	return f
}

func (f fixtures) submit(t *testing.T, studentID string) extension.Request {
	r, err := f.env.ExtensionSvc.Submit(context.Background(), extension.NewRequest{
		MaterialID: f.video.ID,
		StudentID:  studentID,
		Reason:     "was sick",
	})
	require.NoError(t, err)
	return r
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	f := setup(t, &now)
	svc := f.env.ExtensionSvc

	r, err := svc.Submit(ctx, extension.NewRequest{MaterialID: f.video.ID, StudentID: f.student.ID, Reason: "  was sick  "})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, extension.StatusPending, r.Status)
	assert.Equal(t, "was sick", r.Reason)
	assert.Equal(t, now, r.CreatedAt)
	assert.Nil(t, r.DecidedAt)

	// the class teacher is notified
	sent := f.env.MailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, f.teacher.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "was sick")
	assert.Contains(t, sent[0].TextContent, r.ID)

	// submitting does not touch the access state
	va, err := f.env.MaterialSvc.VideoAccess(ctx, f.video.ID, f.student.ID)
	require.NoError(t, err)
	assert.Nil(t, va.AccessStartTime)
	assert.False(t, va.ExtensionApproved)
}

func TestService_Submit_errors(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	f := setup(t, &now)
	svc := f.env.ExtensionSvc
	outsider := testutil.CreateUser(t, f.env.UserRepo, "Out", "out", "out@test.cd", "", []string{user.RoleStudent}, true)
	watching := testutil.CreateUser(t, f.env.UserRepo, "Watching", "watching", "watching@test.cd", "", []string{user.RoleStudent}, true)
	testutil.Subscribe(t, f.env.ClassRepo, f.cls.ID, watching.ID, true, time.Time{})
	_, err := f.env.MaterialSvc.StartWindow(ctx, f.video.ID, watching.ID)
	require.NoError(t, err)
	now = now.Add(material.StandardWindow - time.Second)
	f.submit(t, f.student2.ID)

	tests := []struct {
		name       string
		nr         extension.NewRequest
		wantErr    error
		wantValErr bool
		wantMsg    string
	}{
		{
			name:       "empty reason",
			nr:         extension.NewRequest{MaterialID: f.video.ID, StudentID: f.student.ID, Reason: "   "},
			wantValErr: true,
		},
		{
			name:    "unknown material",
			nr:      extension.NewRequest{MaterialID: "lol", StudentID: f.student.ID, Reason: "please"},
			wantErr: material.ErrNotFound,
		},
		{
			name:       "not a video",
			nr:         extension.NewRequest{MaterialID: f.pdf.ID, StudentID: f.student.ID, Reason: "please"},
			wantValErr: true,
		},
		{
			name:    "no subscription",
			nr:      extension.NewRequest{MaterialID: f.video.ID, StudentID: outsider.ID, Reason: "please"},
			wantErr: material.ErrNoSubscription,
		},
		{
			name:       "already pending",
			nr:         extension.NewRequest{MaterialID: f.video.ID, StudentID: f.student2.ID, Reason: "again"},
			wantValErr: true,
		},
		{
			name:       "window still running",
			nr:         extension.NewRequest{MaterialID: f.video.ID, StudentID: watching.ID, Reason: "more"},
			wantValErr: true,
			wantMsg:    extension.ErrWindowActive.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tt.nr)
			require.Error(t, err)
			if tt.wantValErr {
				assert.True(t, core.IsValidationError(err), "got %v", err)
			} else {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}

	// the running window is left untouched
	va, err := f.env.MaterialSvc.VideoAccess(ctx, f.video.ID, watching.ID)
	require.NoError(t, err)
	require.NotNil(t, va.AccessStartTime)

	t.Run("window just expired", func(t *testing.T) {
		now = now.Add(time.Second)
		r := f.submit(t, watching.ID)
		assert.True(t, r.IsPending())
	})

	pending, err := f.env.ExtensionRepo.QueryRequests(ctx, extension.QueryFilter{StudentID: f.student2.ID}, nil)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "a student has at most one pending request per material")
}

func TestRepository_CreateRequest_concurrent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	f := setup(t, &now)

	const n = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.env.ExtensionRepo.CreateRequest(ctx, extension.Request{
				MaterialID: f.video.ID,
				StudentID:  f.student.ID,
				Reason:     "race",
				Status:     extension.StatusPending,
				CreatedAt:  now,
			})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.Equal(t, extension.ErrPendingExists, errors.Cause(err))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestService_Decide(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("approve", func(t *testing.T) {
		now := now
		f := setup(t, &now)
		_, err := f.env.MaterialSvc.StartWindow(ctx, f.video.ID, f.student.ID)
		require.NoError(t, err)
		now = now.Add(material.StandardWindow)
		r := f.submit(t, f.student.ID)
		f.env.MailSvc.Reset()

		decided, err := f.env.ExtensionSvc.Decide(ctx, extension.Decision{RequestID: r.ID, Approve: true}, f.teacher)
		require.NoError(t, err)
		assert.Equal(t, extension.StatusApproved, decided.Status)
		require.NotNil(t, decided.DecidedAt)
		assert.Equal(t, now, *decided.DecidedAt)
		assert.Equal(t, f.teacher.ID, decided.DecidedBy)

		va, err := f.env.MaterialSvc.VideoAccess(ctx, f.video.ID, f.student.ID)
		require.NoError(t, err)
		assert.True(t, va.ExtensionApproved)
		assert.Nil(t, va.AccessStartTime, "approval opens a new cycle")

		sent := f.env.MailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, f.student.Email, sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "approved")
		assert.Contains(t, sent[0].TextContent, "6h0m0s")

		// the extension is one-time
		_, err = f.env.ExtensionSvc.Submit(ctx, extension.NewRequest{MaterialID: f.video.ID, StudentID: f.student.ID, Reason: "more"})
		assert.True(t, core.IsValidationError(err), "got %v", err)
		assert.True(t, strings.Contains(err.Error(), extension.ErrAlreadyExtended.Error()))
	})

	t.Run("reject", func(t *testing.T) {
		now := now
		f := setup(t, &now)
		start, err := f.env.MaterialSvc.StartWindow(ctx, f.video.ID, f.student.ID)
		require.NoError(t, err)
		now = now.Add(material.StandardWindow)
		r := f.submit(t, f.student.ID)
		f.env.MailSvc.Reset()

		decided, err := f.env.ExtensionSvc.Decide(ctx, extension.Decision{RequestID: r.ID}, f.admin)
		require.NoError(t, err)
		assert.Equal(t, extension.StatusRejected, decided.Status)
		assert.Equal(t, f.admin.ID, decided.DecidedBy)

		va, err := f.env.MaterialSvc.VideoAccess(ctx, f.video.ID, f.student.ID)
		require.NoError(t, err)
		assert.False(t, va.ExtensionApproved)
		require.NotNil(t, va.AccessStartTime)
		assert.Equal(t, start.StartedAt, *va.AccessStartTime)

		sent := f.env.MailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Contains(t, sent[0].TextContent, "rejected")

		// a rejected student may ask again
		f.submit(t, f.student.ID)
	})

	t.Run("errors", func(t *testing.T) {
		f := setup(t, &now)
		r := f.submit(t, f.student.ID)
		other := f.submit(t, f.student2.ID)
		_, err := f.env.ExtensionSvc.Decide(ctx, extension.Decision{RequestID: other.ID, Approve: true}, f.teacher)
		require.NoError(t, err)

		tests := []struct {
			name       string
			requestID  string
			approver   user.User
			wantErr    error
			wantValErr bool
		}{
			{name: "unknown request", requestID: "lol", approver: f.teacher, wantErr: extension.ErrNotFound},
			{name: "student", requestID: r.ID, approver: f.student2, wantErr: extension.ErrForbidden},
			{name: "other teacher", requestID: r.ID, approver: f.otherTeacher, wantErr: extension.ErrForbidden},
			{name: "already decided", requestID: other.ID, approver: f.teacher, wantValErr: true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.env.ExtensionSvc.Decide(ctx, extension.Decision{RequestID: tt.requestID, Approve: true}, tt.approver)
				require.Error(t, err)
				if tt.wantValErr {
					assert.True(t, core.IsValidationError(err), "got %v", err)
				} else {
					assert.Equal(t, tt.wantErr, errors.Cause(err))
				}
			})
		}

		got, err := f.env.ExtensionRepo.GetRequest(ctx, r.ID)
		require.NoError(t, err)
		assert.True(t, got.IsPending())
	})
}

func TestService_GetAndQuery(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	f := setup(t, &now)
	svc := f.env.ExtensionSvc

	r1 := f.submit(t, f.student.ID)
	now = now.Add(time.Minute)
	r2 := f.submit(t, f.student2.ID)

	t.Run("get", func(t *testing.T) {
		tests := []struct {
			name    string
			usr     user.User
			wantErr error
		}{
			{name: "owner", usr: f.student},
			{name: "class teacher", usr: f.teacher},
			{name: "admin", usr: f.admin},
			{name: "other student", usr: f.student2, wantErr: extension.ErrNotFound},
			{name: "other teacher", usr: f.otherTeacher, wantErr: extension.ErrNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := svc.Get(ctx, r1.ID, tt.usr)
				if tt.wantErr != nil {
					assert.Equal(t, tt.wantErr, errors.Cause(err))
					return
				}
				require.NoError(t, err)
				assert.Equal(t, r1.ID, got.ID)
			})
		}
	})

	t.Run("query", func(t *testing.T) {
		tests := []struct {
			name     string
			usr      user.User
			filter   extension.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "admin", usr: f.admin, want: []string{r2.ID, r1.ID}},
			{name: "admin oldest first", usr: f.admin, ordering: []core.DBOrdering{{Field: "created_at", Ascending: true}}, want: []string{r1.ID, r2.ID}},
			{name: "class teacher", usr: f.teacher, want: []string{r2.ID, r1.ID}},
			{name: "other teacher", usr: f.otherTeacher, want: []string{}},
			{name: "student sees own", usr: f.student, want: []string{r1.ID}},
			{name: "student cannot widen", usr: f.student, filter: extension.QueryFilter{StudentID: f.student2.ID}, want: []string{r1.ID}},
			{name: "by status", usr: f.admin, filter: extension.QueryFilter{Status: extension.StatusApproved}, want: []string{}},
			{name: "by class", usr: f.admin, filter: extension.QueryFilter{ClassID: f.cls.ID}, want: []string{r2.ID, r1.ID}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := svc.Query(ctx, tt.filter, tt.ordering, tt.usr)
				require.NoError(t, err)
				ids := make([]string, 0, len(got))
				for _, r := range got {
					ids = append(ids, r.ID)
				}
				assert.Equal(t, tt.want, ids)
			})
		}
	})
}
