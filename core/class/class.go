// Package class holds classes and the subscriptions entitling students to their materials.
package class

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/user"
)

var (
	NowFunc = time.Now // mockable

	ErrNotFound = errors.New("class not found")
)

type Class struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TeacherID string    `json:"teacher_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

// Subscription entitles a student to a class' materials.
type Subscription struct {
	ClassID   string    `json:"class_id"`
	StudentID string    `json:"student_id"`
	IsActive  bool      `json:"is_active"`
	ExpiresAt time.Time `json:"expires_at"` // zero: never expires
	CreatedAt time.Time `json:"created_at"`
}

// ActiveAt reports whether the subscription entitles its student at t.
func (s Subscription) ActiveAt(t time.Time) bool {
	return s.IsActive && (s.ExpiresAt.IsZero() || t.Before(s.ExpiresAt))
}

type (
	Repository interface {
		CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		// GetSubscription returns ErrNotFound when the student never subscribed to the class.
		GetSubscription(ctx context.Context, classID, studentID string, exec ...core.DBExecutor) (Subscription, error)
		SaveSubscription(ctx context.Context, sub Subscription, exec ...core.DBExecutor) (Subscription, error)
	}

	// Service is the subscription/entitlement gate the material workflows delegate to.
	Service interface {
		Create(ctx context.Context, name, teacherID string) (Class, error)
		GetByID(ctx context.Context, id string) (Class, error)
		Subscribe(ctx context.Context, classID, studentID string, expiresAt time.Time) (Subscription, error)
		Unsubscribe(ctx context.Context, classID, studentID string) error
		HasActiveSubscription(ctx context.Context, classID, studentID string) (bool, error)
		// CanAccess reports whether usr may see the class materials:
		// admins, the class teacher and actively subscribed students.
		CanAccess(ctx context.Context, cls Class, usr user.User) (bool, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (svc *service) Create(ctx context.Context, name, teacherID string) (Class, error) {
	name = core.CleanString(name)
	if name == "" {
		return Class{}, core.NewFieldError("name", "this field is required")
	}
	return svc.repo.CreateClass(ctx, Class{
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: NowFunc().UTC(),
	})
}

func (svc *service) GetByID(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) Subscribe(ctx context.Context, classID, studentID string, expiresAt time.Time) (Subscription, error) {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return Subscription{}, err
	}
	sub := Subscription{
		ClassID:   classID,
		StudentID: studentID,
		IsActive:  true,
		CreatedAt: NowFunc().UTC(),
	}
	if !expiresAt.IsZero() {
		sub.ExpiresAt = expiresAt.UTC()
	}
	return svc.repo.SaveSubscription(ctx, sub)
}

func (svc *service) Unsubscribe(ctx context.Context, classID, studentID string) error {
	sub, err := svc.repo.GetSubscription(ctx, classID, studentID)
	if err != nil {
		return err
	}
	sub.IsActive = false
	_, err = svc.repo.SaveSubscription(ctx, sub)
	return err
}

func (svc *service) HasActiveSubscription(ctx context.Context, classID, studentID string) (bool, error) {
	sub, err := svc.repo.GetSubscription(ctx, classID, studentID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "getting subscription")
	}
	return sub.ActiveAt(NowFunc()), nil
}

func (svc *service) CanAccess(ctx context.Context, cls Class, usr user.User) (bool, error) {
	switch {
	case usr.IsAdmin():
		return true, nil
	case usr.IsTeacher() && cls.TeacherID == usr.ID:
		return true, nil
	case usr.IsStudent():
		return svc.HasActiveSubscription(ctx, cls.ID, usr.ID)
	}
	return false, nil
}
