package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/material"
)

var defaultMaterialOrdering = []core.DBOrdering{{Field: "uploaded_at"}}

type materialRepository struct {
	db *DB
}

var _ material.Repository = (*materialRepository)(nil) // interface compliance check

func NewMaterialRepository(db *DB) material.Repository {
	return &materialRepository{db: db}
}

func (repo *materialRepository) CreateMaterial(_ context.Context, m material.Material, _ ...core.DBExecutor) (material.Material, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m.ID = uuid.New().String()
	m.VideoAccess = nil
	repo.db.materials[m.ID] = &m
	return m, nil
}

func (repo *materialRepository) GetMaterial(_ context.Context, id string, _ ...core.DBExecutor) (material.Material, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.materials[id]; ok {
		return *m, nil
	}
	return material.Material{}, material.ErrNotFound
}

func (repo *materialRepository) QueryMaterials(_ context.Context, filter material.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]material.Material, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	search := strings.ToLower(filter.Search)
	materials := make([]material.Material, 0)
	for _, m := range repo.db.materials {
		if filter.ClassID != "" && m.ClassID != filter.ClassID {
			continue
		}
		if filter.Type != "" && m.Type != filter.Type {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(m.Title), search) {
			continue
		}
		materials = append(materials, *m)
	}

	if len(ordering) == 0 {
		ordering = defaultMaterialOrdering
	}
	order(materials, ordering, func(field string, a, b material.Material) int {
		switch field {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "type":
			return strings.Compare(string(a.Type), string(b.Type))
		case "uploaded_at":
			return a.UploadedAt.Compare(b.UploadedAt)
		}
		return 0
	})
	return materials, nil
}

func (repo *materialRepository) GetVideoAccess(_ context.Context, materialID, studentID string, _ ...core.DBExecutor) (material.VideoAccess, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if va, ok := repo.db.videoAccess[accessKey{materialID, studentID}]; ok {
		return copyAccess(va), nil
	}
	return material.VideoAccess{MaterialID: materialID, StudentID: studentID}, nil
}

func (repo *materialRepository) QueryVideoAccess(_ context.Context, studentID string, materialIDs []string, _ ...core.DBExecutor) ([]material.VideoAccess, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	states := make([]material.VideoAccess, 0, len(materialIDs))
	for _, id := range materialIDs {
		if va, ok := repo.db.videoAccess[accessKey{id, studentID}]; ok {
			states = append(states, copyAccess(va))
		}
	}
	return states, nil
}

func (repo *materialRepository) StartVideoAccess(_ context.Context, materialID, studentID string, at time.Time, _ ...core.DBExecutor) (material.VideoAccess, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.materials[materialID]; !ok {
		return material.VideoAccess{}, material.ErrNotFound
	}
	key := accessKey{materialID, studentID}
	va, ok := repo.db.videoAccess[key]
	if !ok {
		va = &material.VideoAccess{MaterialID: materialID, StudentID: studentID}
		repo.db.videoAccess[key] = va
	}
	if va.AccessStartTime == nil {
		start := at.UTC()
		va.AccessStartTime = &start
		va.UpdatedAt = start
	}
	return copyAccess(va), nil
}

// copyAccess detaches the returned state from the stored one.
func copyAccess(va *material.VideoAccess) material.VideoAccess {
	cp := *va
	if va.AccessStartTime != nil {
		t := *va.AccessStartTime
		cp.AccessStartTime = &t
	}
	return cp
}
