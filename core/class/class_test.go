package class_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/user"
	"github.com/trezcool/masomo-materials/testutil"
)

func TestSubscription_ActiveAt(t *testing.T) {
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		sub  class.Subscription
		want bool
	}{
		{name: "active forever", sub: class.Subscription{IsActive: true}, want: true},
		{name: "inactive", sub: class.Subscription{IsActive: false}, want: false},
		{name: "not yet expired", sub: class.Subscription{IsActive: true, ExpiresAt: now.Add(time.Second)}, want: true},
		{name: "expires now", sub: class.Subscription{IsActive: true, ExpiresAt: now}, want: false},
		{name: "expired", sub: class.Subscription{IsActive: true, ExpiresAt: now.Add(-time.Hour)}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sub.ActiveAt(now))
		})
	}
}

func TestService(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	class.NowFunc = testutil.FixedClock(&now)
	defer func() { class.NowFunc = time.Now }()

	env := testutil.NewEnv()
	svc := env.ClassSvc
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true)
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	other := testutil.CreateUser(t, env.UserRepo, "Other", "other", "other@test.cd", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, env.UserRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

	_, err := svc.Create(ctx, "  ", teacher.ID)
	assert.True(t, core.IsValidationError(err), "got %v", err)

	cls, err := svc.Create(ctx, " Maths ", teacher.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maths", cls.Name)
	assert.Equal(t, now, cls.CreatedAt)

	got, err := svc.GetByID(ctx, cls.ID)
	require.NoError(t, err)
	assert.Equal(t, cls, got)
	_, err = svc.GetByID(ctx, "lol")
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))

	checkAccess := func(usr user.User, want bool) {
		t.Helper()
		ok, err := svc.CanAccess(ctx, cls, usr)
		require.NoError(t, err)
		assert.Equal(t, want, ok, usr.Username)
	}
	checkAccess(admin, true)
	checkAccess(teacher, true)
	checkAccess(other, false)
	checkAccess(student, false)

	_, err = svc.Subscribe(ctx, "lol", student.ID, time.Time{})
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))

	sub, err := svc.Subscribe(ctx, cls.ID, student.ID, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	checkAccess(student, true)

	now = now.Add(25 * time.Hour)
	checkAccess(student, false)

	// re-subscribing renews
	_, err = svc.Subscribe(ctx, cls.ID, student.ID, time.Time{})
	require.NoError(t, err)
	checkAccess(student, true)

	require.NoError(t, svc.Unsubscribe(ctx, cls.ID, student.ID))
	checkAccess(student, false)

	err = svc.Unsubscribe(ctx, cls.ID, other.ID)
	assert.Equal(t, class.ErrNotFound, errors.Cause(err))
}
