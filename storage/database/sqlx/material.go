package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/material"
)

const (
	materialColumns    = `id, class_id, title, type, location, uploaded_at`
	videoAccessColumns = `material_id, student_id, access_start_time, extension_approved, updated_at`
)

type (
	materialRow struct {
		ID         string    `db:"id"`
		ClassID    string    `db:"class_id"`
		Title      string    `db:"title"`
		Type       string    `db:"type"`
		Location   string    `db:"location"`
		UploadedAt time.Time `db:"uploaded_at"`
	}

	videoAccessRow struct {
		MaterialID        string    `db:"material_id"`
		StudentID         string    `db:"student_id"`
		AccessStartTime   null.Time `db:"access_start_time"`
		ExtensionApproved bool      `db:"extension_approved"`
		UpdatedAt         time.Time `db:"updated_at"`
	}
)

func (row materialRow) material() material.Material {
	return material.Material{
		ID:         row.ID,
		ClassID:    row.ClassID,
		Title:      row.Title,
		Type:       material.ContentType(row.Type),
		Location:   row.Location,
		UploadedAt: row.UploadedAt.UTC(),
	}
}

func (row videoAccessRow) videoAccess() material.VideoAccess {
	va := material.VideoAccess{
		MaterialID:        row.MaterialID,
		StudentID:         row.StudentID,
		ExtensionApproved: row.ExtensionApproved,
		UpdatedAt:         row.UpdatedAt.UTC(),
	}
	if row.AccessStartTime.Valid {
		t := row.AccessStartTime.Time.UTC()
		va.AccessStartTime = &t
	}
	return va
}

type materialRepository struct {
	repo
}

var _ material.Repository = (*materialRepository)(nil) // interface compliance check

func NewMaterialRepository(db core.DB) material.Repository {
	return &materialRepository{repo{db: db}}
}

func (r *materialRepository) CreateMaterial(ctx context.Context, m material.Material, exec ...core.DBExecutor) (material.Material, error) {
	m.ID = uuid.New().String()
	m.VideoAccess = nil
	_, err := r.getExec(exec).ExecContext(ctx,
		`INSERT INTO material (`+materialColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ClassID, m.Title, string(m.Type), m.Location, m.UploadedAt.UTC(),
	)
	if err != nil {
		return material.Material{}, errors.Wrap(err, "inserting material")
	}
	return m, nil
}

func (r *materialRepository) GetMaterial(ctx context.Context, id string, exec ...core.DBExecutor) (material.Material, error) {
	if !validID(id) {
		return material.Material{}, material.ErrNotFound
	}
	var row materialRow
	if err := r.getExec(exec).GetContext(ctx, &row, `SELECT `+materialColumns+` FROM material WHERE id = $1`, id); err != nil {
		return material.Material{}, trapNoRowsErr(err, material.ErrNotFound, "finding material")
	}
	return row.material(), nil
}

func (r *materialRepository) QueryMaterials(ctx context.Context, filter material.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]material.Material, error) {
	if filter.ClassID != "" && !validID(filter.ClassID) {
		return []material.Material{}, nil
	}
	w := &where{}
	if filter.ClassID != "" {
		w.add("class_id = ?", filter.ClassID)
	}
	if filter.Type != "" {
		w.add("type = ?", string(filter.Type))
	}
	if filter.Search != "" {
		w.add("title ILIKE ?", "%"+filter.Search+"%")
	}

	var rows []materialRow
	q := rebind(`SELECT ` + materialColumns + ` FROM material` + w.String() + orderBy(ordering, "uploaded_at DESC"))
	if err := r.getExec(exec).SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying materials")
	}
	materials := make([]material.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, row.material())
	}
	return materials, nil
}

func (r *materialRepository) GetVideoAccess(ctx context.Context, materialID, studentID string, exec ...core.DBExecutor) (material.VideoAccess, error) {
	zero := material.VideoAccess{MaterialID: materialID, StudentID: studentID}
	if !validID(materialID) || !validID(studentID) {
		return zero, nil
	}
	var row videoAccessRow
	err := r.getExec(exec).GetContext(ctx, &row,
		`SELECT `+videoAccessColumns+` FROM video_access WHERE material_id = $1 AND student_id = $2`,
		materialID, studentID,
	)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return zero, nil
		}
		return material.VideoAccess{}, errors.Wrap(err, "finding video access")
	}
	return row.videoAccess(), nil
}

func (r *materialRepository) QueryVideoAccess(ctx context.Context, studentID string, materialIDs []string, exec ...core.DBExecutor) ([]material.VideoAccess, error) {
	if !validID(studentID) {
		return []material.VideoAccess{}, nil
	}
	var rows []videoAccessRow
	err := r.getExec(exec).SelectContext(ctx, &rows,
		`SELECT `+videoAccessColumns+` FROM video_access WHERE student_id = $1 AND material_id = ANY($2::uuid[])`,
		studentID, pq.Array(validIDs(materialIDs)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying video access")
	}
	states := make([]material.VideoAccess, 0, len(rows))
	for _, row := range rows {
		states = append(states, row.videoAccess())
	}
	return states, nil
}

// StartVideoAccess relies on COALESCE so that concurrent starts keep the first stored time.
func (r *materialRepository) StartVideoAccess(ctx context.Context, materialID, studentID string, at time.Time, exec ...core.DBExecutor) (material.VideoAccess, error) {
	if !validID(materialID) {
		return material.VideoAccess{}, material.ErrNotFound
	}
	if !validID(studentID) {
		return material.VideoAccess{}, errors.Errorf("invalid student id %q", studentID)
	}
	at = at.UTC()
	var row videoAccessRow
	err := r.getExec(exec).GetContext(ctx, &row,
		`INSERT INTO video_access (`+videoAccessColumns+`)
		VALUES ($1, $2, $3, FALSE, $3)
		ON CONFLICT (material_id, student_id) DO UPDATE
		SET access_start_time = COALESCE(video_access.access_start_time, EXCLUDED.access_start_time),
			updated_at = CASE WHEN video_access.access_start_time IS NULL THEN EXCLUDED.updated_at ELSE video_access.updated_at END
		RETURNING `+videoAccessColumns,
		materialID, studentID, at,
	)
	if err != nil {
		return material.VideoAccess{}, errors.Wrap(err, "upserting video access")
	}
	return row.videoAccess(), nil
}
