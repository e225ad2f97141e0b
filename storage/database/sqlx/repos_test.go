package sqlxrepos_test

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
	"github.com/trezcool/masomo-materials/storage/database"
	sqlxrepos "github.com/trezcool/masomo-materials/storage/database/sqlx"
)

// openDB connects to the TEST_DATABASE_* postgres and migrates it.
func openDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() || strings.ToUpper(os.Getenv("ENV")) != "TEST" {
		t.Skip("postgres tests run with ENV=TEST")
	}
	conf := core.NewConfig()
	require.NoError(t, database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))
	return db
}

type repos struct {
	users      user.Repository
	classes    class.Repository
	materials  material.Repository
	extensions extension.Repository
}

func newRepos(db core.DB) repos {
	return repos{
		users:      sqlxrepos.NewUserRepository(db),
		classes:    sqlxrepos.NewClassRepository(db),
		materials:  sqlxrepos.NewMaterialRepository(db),
		extensions: sqlxrepos.NewExtensionRepository(db),
	}
}

func (r repos) student(t *testing.T, now time.Time) user.User {
	t.Helper()
	name := "s" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	usr, err := r.users.CreateUser(context.Background(), user.User{
		Name:      name,
		Username:  name,
		Email:     name + "@test.cd",
		IsActive:  true,
		Roles:     []string{user.RoleStudent},
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return usr
}

func (r repos) video(t *testing.T, now time.Time) material.Material {
	t.Helper()
	ctx := context.Background()
	cls, err := r.classes.CreateClass(ctx, class.Class{Name: "Maths", CreatedAt: now})
	require.NoError(t, err)
	m, err := r.materials.CreateMaterial(ctx, material.Material{
		ClassID:    cls.ID,
		Title:      "Lesson 1",
		Type:       material.TypeVideo,
		Location:   "https://cdn.test.cd/lesson1.mp4",
		UploadedAt: now,
	})
	require.NoError(t, err)
	return m
}

func TestMaterialRepository_StartVideoAccess(t *testing.T) {
	r := newRepos(openDB(t))
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	video := r.video(t, now)

	t.Run("first start is kept", func(t *testing.T) {
		usr := r.student(t, now)

		va, err := r.materials.StartVideoAccess(ctx, video.ID, usr.ID, now)
		require.NoError(t, err)
		require.NotNil(t, va.AccessStartTime)
		assert.True(t, now.Equal(*va.AccessStartTime))
		assert.False(t, va.ExtensionApproved)

		va, err = r.materials.StartVideoAccess(ctx, video.ID, usr.ID, now.Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, va.AccessStartTime)
		assert.True(t, now.Equal(*va.AccessStartTime))

		stored, err := r.materials.GetVideoAccess(ctx, video.ID, usr.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.AccessStartTime)
		assert.True(t, now.Equal(*stored.AccessStartTime))
	})

	t.Run("concurrent starts", func(t *testing.T) {
		usr := r.student(t, now)

		const n = 10
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			starts = make(map[int64]bool)
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				va, err := r.materials.StartVideoAccess(ctx, video.ID, usr.ID, now.Add(time.Duration(i)*time.Second))
				if assert.NoError(t, err) && assert.NotNil(t, va.AccessStartTime) {
					mu.Lock()
					starts[va.AccessStartTime.Unix()] = true
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		assert.Len(t, starts, 1, "every start sees the same stored time")
	})

	t.Run("unknown ids", func(t *testing.T) {
		_, err := r.materials.StartVideoAccess(ctx, "lol", uuid.New().String(), now)
		assert.Equal(t, material.ErrNotFound, errors.Cause(err))
	})
}

func TestExtensionRepository_DecideRequest(t *testing.T) {
	r := newRepos(openDB(t))
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	video := r.video(t, now)

	submit := func(t *testing.T, studentID string) extension.Request {
		t.Helper()
		req, err := r.extensions.CreateRequest(ctx, extension.Request{
			MaterialID: video.ID,
			StudentID:  studentID,
			Reason:     "was sick",
			Status:     extension.StatusPending,
			CreatedAt:  now,
		})
		require.NoError(t, err)
		return req
	}
	decide := func(req extension.Request, status extension.Status) (extension.Request, error) {
		decidedAt := now.Add(25 * time.Hour)
		req.Status = status
		req.DecidedAt = &decidedAt
		return r.extensions.DecideRequest(ctx, req)
	}

	t.Run("one pending per student", func(t *testing.T) {
		usr := r.student(t, now)
		submit(t, usr.ID)
		_, err := r.extensions.CreateRequest(ctx, extension.Request{
			MaterialID: video.ID, StudentID: usr.ID, Reason: "again", Status: extension.StatusPending, CreatedAt: now,
		})
		assert.Equal(t, extension.ErrPendingExists, errors.Cause(err))
	})

	t.Run("approve opens a new cycle", func(t *testing.T) {
		usr := r.student(t, now)
		_, err := r.materials.StartVideoAccess(ctx, video.ID, usr.ID, now)
		require.NoError(t, err)
		req := submit(t, usr.ID)

		decided, err := decide(req, extension.StatusApproved)
		require.NoError(t, err)
		assert.Equal(t, extension.StatusApproved, decided.Status)
		require.NotNil(t, decided.DecidedAt)

		va, err := r.materials.GetVideoAccess(ctx, video.ID, usr.ID)
		require.NoError(t, err)
		assert.Nil(t, va.AccessStartTime)
		assert.True(t, va.ExtensionApproved)

		_, err = decide(req, extension.StatusRejected)
		assert.Equal(t, extension.ErrAlreadyDecided, errors.Cause(err))
		got, err := r.extensions.GetRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, extension.StatusApproved, got.Status)
	})

	t.Run("approve without a started window", func(t *testing.T) {
		usr := r.student(t, now)
		_, err := decide(submit(t, usr.ID), extension.StatusApproved)
		require.NoError(t, err)

		va, err := r.materials.GetVideoAccess(ctx, video.ID, usr.ID)
		require.NoError(t, err)
		assert.Nil(t, va.AccessStartTime)
		assert.True(t, va.ExtensionApproved)
	})

	t.Run("reject leaves the access untouched", func(t *testing.T) {
		usr := r.student(t, now)
		_, err := r.materials.StartVideoAccess(ctx, video.ID, usr.ID, now)
		require.NoError(t, err)

		_, err = decide(submit(t, usr.ID), extension.StatusRejected)
		require.NoError(t, err)

		va, err := r.materials.GetVideoAccess(ctx, video.ID, usr.ID)
		require.NoError(t, err)
		require.NotNil(t, va.AccessStartTime)
		assert.True(t, now.Equal(*va.AccessStartTime))
		assert.False(t, va.ExtensionApproved)

		// a rejected request no longer blocks a new one
		submit(t, usr.ID)
	})

	t.Run("concurrent decisions", func(t *testing.T) {
		usr := r.student(t, now)
		req := submit(t, usr.ID)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			decided int
		)
		for _, status := range []extension.Status{extension.StatusApproved, extension.StatusRejected, extension.StatusApproved} {
			wg.Add(1)
			go func(status extension.Status) {
				defer wg.Done()
				_, err := decide(req, status)
				if err == nil {
					mu.Lock()
					decided++
					mu.Unlock()
					return
				}
				assert.Equal(t, extension.ErrAlreadyDecided, errors.Cause(err))
			}(status)
		}
		wg.Wait()
		assert.Equal(t, 1, decided)
	})
}
