package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
)

type (
	classRow struct {
		ID        string      `db:"id"`
		Name      string      `db:"name"`
		TeacherID null.String `db:"teacher_id"`
		CreatedAt time.Time   `db:"created_at"`
	}

	subscriptionRow struct {
		ClassID   string    `db:"class_id"`
		StudentID string    `db:"student_id"`
		IsActive  bool      `db:"is_active"`
		ExpiresAt null.Time `db:"expires_at"`
		CreatedAt time.Time `db:"created_at"`
	}
)

func (row classRow) class() class.Class {
	return class.Class{
		ID:        row.ID,
		Name:      row.Name,
		TeacherID: row.TeacherID.String,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func (row subscriptionRow) subscription() class.Subscription {
	sub := class.Subscription{
		ClassID:   row.ClassID,
		StudentID: row.StudentID,
		IsActive:  row.IsActive,
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.ExpiresAt.Valid {
		sub.ExpiresAt = row.ExpiresAt.Time.UTC()
	}
	return sub
}

type classRepository struct {
	repo
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db core.DB) class.Repository {
	return &classRepository{repo{db: db}}
}

func (r *classRepository) CreateClass(ctx context.Context, cls class.Class, exec ...core.DBExecutor) (class.Class, error) {
	cls.ID = uuid.New().String()
	if cls.TeacherID != "" && !validID(cls.TeacherID) {
		return class.Class{}, core.NewFieldError("teacher_id", "invalid teacher id")
	}
	_, err := r.getExec(exec).ExecContext(ctx,
		`INSERT INTO class (id, name, teacher_id, created_at) VALUES ($1, $2, $3, $4)`,
		cls.ID, cls.Name, null.NewString(cls.TeacherID, cls.TeacherID != ""), cls.CreatedAt.UTC(),
	)
	if err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (r *classRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (class.Class, error) {
	if !validID(id) {
		return class.Class{}, class.ErrNotFound
	}
	var row classRow
	err := r.getExec(exec).GetContext(ctx, &row, `SELECT id, name, teacher_id, created_at FROM class WHERE id = $1`, id)
	if err != nil {
		return class.Class{}, trapNoRowsErr(err, class.ErrNotFound, "finding class")
	}
	return row.class(), nil
}

func (r *classRepository) GetSubscription(ctx context.Context, classID, studentID string, exec ...core.DBExecutor) (class.Subscription, error) {
	if !validID(classID) || !validID(studentID) {
		return class.Subscription{}, class.ErrNotFound
	}
	var row subscriptionRow
	err := r.getExec(exec).GetContext(ctx, &row,
		`SELECT class_id, student_id, is_active, expires_at, created_at
		FROM class_subscription WHERE class_id = $1 AND student_id = $2`,
		classID, studentID,
	)
	if err != nil {
		return class.Subscription{}, trapNoRowsErr(err, class.ErrNotFound, "finding subscription")
	}
	return row.subscription(), nil
}

func (r *classRepository) SaveSubscription(ctx context.Context, sub class.Subscription, exec ...core.DBExecutor) (class.Subscription, error) {
	if !validID(sub.ClassID) || !validID(sub.StudentID) {
		return class.Subscription{}, class.ErrNotFound
	}
	var row subscriptionRow
	err := r.getExec(exec).GetContext(ctx, &row,
		`INSERT INTO class_subscription (class_id, student_id, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_id, student_id) DO UPDATE
		SET is_active = EXCLUDED.is_active, expires_at = EXCLUDED.expires_at
		RETURNING class_id, student_id, is_active, expires_at, created_at`,
		sub.ClassID, sub.StudentID, sub.IsActive,
		null.NewTime(sub.ExpiresAt.UTC(), !sub.ExpiresAt.IsZero()),
		sub.CreatedAt.UTC(),
	)
	if err != nil {
		return class.Subscription{}, errors.Wrap(err, "saving subscription")
	}
	return row.subscription(), nil
}
