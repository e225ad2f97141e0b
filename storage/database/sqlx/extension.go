package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/extension"
)

const extensionColumns = `id, material_id, student_id, reason, status, created_at, decided_at, decided_by`

type extensionRow struct {
	ID         string      `db:"id"`
	MaterialID string      `db:"material_id"`
	StudentID  string      `db:"student_id"`
	Reason     string      `db:"reason"`
	Status     string      `db:"status"`
	CreatedAt  time.Time   `db:"created_at"`
	DecidedAt  null.Time   `db:"decided_at"`
	DecidedBy  null.String `db:"decided_by"`
}

func (row extensionRow) request() extension.Request {
	r := extension.Request{
		ID:         row.ID,
		MaterialID: row.MaterialID,
		StudentID:  row.StudentID,
		Reason:     row.Reason,
		Status:     extension.Status(row.Status),
		CreatedAt:  row.CreatedAt.UTC(),
		DecidedBy:  row.DecidedBy.String,
	}
	if row.DecidedAt.Valid {
		t := row.DecidedAt.Time.UTC()
		r.DecidedAt = &t
	}
	return r
}

type extensionRepository struct {
	repo
}

var _ extension.Repository = (*extensionRepository)(nil) // interface compliance check

func NewExtensionRepository(db core.DB) extension.Repository {
	return &extensionRepository{repo{db: db}}
}

func (r *extensionRepository) CreateRequest(ctx context.Context, req extension.Request, exec ...core.DBExecutor) (extension.Request, error) {
	req.ID = uuid.New().String()
	_, err := r.getExec(exec).ExecContext(ctx,
		`INSERT INTO extension_request (id, material_id, student_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.MaterialID, req.StudentID, req.Reason, string(req.Status), req.CreatedAt.UTC(),
	)
	if err != nil {
		// extension_request_pending_uidx
		if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == "23505" {
			return extension.Request{}, extension.ErrPendingExists
		}
		return extension.Request{}, errors.Wrap(err, "inserting extension request")
	}
	return req, nil
}

func (r *extensionRepository) GetRequest(ctx context.Context, id string, exec ...core.DBExecutor) (extension.Request, error) {
	if !validID(id) {
		return extension.Request{}, extension.ErrNotFound
	}
	var row extensionRow
	err := r.getExec(exec).GetContext(ctx, &row, `SELECT `+extensionColumns+` FROM extension_request WHERE id = $1`, id)
	if err != nil {
		return extension.Request{}, trapNoRowsErr(err, extension.ErrNotFound, "finding extension request")
	}
	return row.request(), nil
}

func (r *extensionRepository) HasPendingRequest(ctx context.Context, materialID, studentID string, exec ...core.DBExecutor) (bool, error) {
	if !validID(materialID) || !validID(studentID) {
		return false, nil
	}
	var exists bool
	err := r.getExec(exec).GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM extension_request WHERE material_id = $1 AND student_id = $2 AND status = $3)`,
		materialID, studentID, string(extension.StatusPending),
	)
	if err != nil {
		return false, errors.Wrap(err, "checking pending extension requests")
	}
	return exists, nil
}

func (r *extensionRepository) QueryRequests(ctx context.Context, filter extension.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]extension.Request, error) {
	for _, id := range []string{filter.MaterialID, filter.StudentID, filter.ClassID, filter.TeacherID} {
		if id != "" && !validID(id) {
			return []extension.Request{}, nil
		}
	}

	w := &where{}
	if filter.Status != "" {
		w.add("er.status = ?", string(filter.Status))
	}
	if filter.MaterialID != "" {
		w.add("er.material_id = ?", filter.MaterialID)
	}
	if filter.StudentID != "" {
		w.add("er.student_id = ?", filter.StudentID)
	}
	if filter.ClassID != "" {
		w.add("m.class_id = ?", filter.ClassID)
	}
	if filter.TeacherID != "" {
		w.add("c.teacher_id = ?", filter.TeacherID)
	}

	orders := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		ord.Field = "er." + ord.Field
		orders = append(orders, ord)
	}

	q := rebind(`SELECT er.id, er.material_id, er.student_id, er.reason, er.status, er.created_at, er.decided_at, er.decided_by
		FROM extension_request er
		JOIN material m ON m.id = er.material_id
		JOIN class c ON c.id = m.class_id` + w.String() + orderBy(orders, "er.created_at DESC"))

	var rows []extensionRow
	if err := r.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying extension requests")
	}
	requests := make([]extension.Request, 0, len(rows))
	for _, row := range rows {
		requests = append(requests, row.request())
	}
	return requests, nil
}

func (r *extensionRepository) DecideRequest(ctx context.Context, req extension.Request) (_ extension.Request, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return extension.Request{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	decidedAt := time.Now().UTC()
	if req.DecidedAt != nil {
		decidedAt = req.DecidedAt.UTC()
	}

	var row extensionRow
	err = tx.GetContext(ctx, &row,
		`UPDATE extension_request SET status = $2, decided_at = $3, decided_by = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+extensionColumns,
		req.ID, string(req.Status), decidedAt, null.NewString(req.DecidedBy, validID(req.DecidedBy)),
	)
	if err != nil {
		return extension.Request{}, trapNoRowsErr(err, extension.ErrAlreadyDecided, "updating extension request")
	}

	if req.Status == extension.StatusApproved {
		// open a new, extended cycle
		_, err = tx.ExecContext(ctx,
			`INSERT INTO video_access (material_id, student_id, access_start_time, extension_approved, updated_at)
			VALUES ($1, $2, NULL, TRUE, $3)
			ON CONFLICT (material_id, student_id) DO UPDATE
			SET access_start_time = NULL, extension_approved = TRUE, updated_at = EXCLUDED.updated_at`,
			row.MaterialID, row.StudentID, decidedAt,
		)
		if err != nil {
			return extension.Request{}, errors.Wrap(err, "extending video access")
		}
	}

	if err = tx.Commit(); err != nil {
		return extension.Request{}, errors.Wrap(err, "committing decision")
	}
	return row.request(), nil
}
