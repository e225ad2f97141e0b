package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
)

var defaultExtensionOrdering = []core.DBOrdering{{Field: "created_at"}}

type extensionRepository struct {
	db *DB
}

var _ extension.Repository = (*extensionRepository)(nil) // interface compliance check

func NewExtensionRepository(db *DB) extension.Repository {
	return &extensionRepository{db: db}
}

func (repo *extensionRepository) CreateRequest(_ context.Context, r extension.Request, _ ...core.DBExecutor) (extension.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if r.IsPending() && repo.hasPending(r.MaterialID, r.StudentID) {
		return extension.Request{}, extension.ErrPendingExists
	}
	r.ID = uuid.New().String()
	repo.db.extensions[r.ID] = &r
	return copyRequest(&r), nil
}

func (repo *extensionRepository) GetRequest(_ context.Context, id string, _ ...core.DBExecutor) (extension.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.extensions[id]; ok {
		return copyRequest(r), nil
	}
	return extension.Request{}, extension.ErrNotFound
}

func (repo *extensionRepository) HasPendingRequest(_ context.Context, materialID, studentID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.hasPending(materialID, studentID), nil
}

func (repo *extensionRepository) hasPending(materialID, studentID string) bool {
	for _, r := range repo.db.extensions {
		if r.MaterialID == materialID && r.StudentID == studentID && r.IsPending() {
			return true
		}
	}
	return false
}

func (repo *extensionRepository) QueryRequests(_ context.Context, filter extension.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]extension.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	requests := make([]extension.Request, 0)
	for _, r := range repo.db.extensions {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.MaterialID != "" && r.MaterialID != filter.MaterialID {
			continue
		}
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.ClassID != "" || filter.TeacherID != "" {
			m, ok := repo.db.materials[r.MaterialID]
			if !ok || (filter.ClassID != "" && m.ClassID != filter.ClassID) {
				continue
			}
			if filter.TeacherID != "" {
				cls, ok := repo.db.classes[m.ClassID]
				if !ok || cls.TeacherID != filter.TeacherID {
					continue
				}
			}
		}
		requests = append(requests, copyRequest(r))
	}

	if len(ordering) == 0 {
		ordering = defaultExtensionOrdering
	}
	order(requests, ordering, func(field string, a, b extension.Request) int {
		switch field {
		case "created_at":
			return a.CreatedAt.Compare(b.CreatedAt)
		case "status":
			return strings.Compare(string(a.Status), string(b.Status))
		case "decided_at":
			switch {
			case a.DecidedAt == nil && b.DecidedAt == nil:
				return 0
			case a.DecidedAt == nil:
				return 1 // NULLS LAST
			case b.DecidedAt == nil:
				return -1
			}
			return a.DecidedAt.Compare(*b.DecidedAt)
		}
		return 0
	})
	return requests, nil
}

func (repo *extensionRepository) DecideRequest(_ context.Context, r extension.Request) (extension.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.extensions[r.ID]
	if !ok {
		return extension.Request{}, extension.ErrNotFound
	}
	if !stored.IsPending() {
		return extension.Request{}, extension.ErrAlreadyDecided
	}

	stored.Status = r.Status
	stored.DecidedAt = r.DecidedAt
	stored.DecidedBy = r.DecidedBy

	if stored.Status == extension.StatusApproved {
		// open a new, extended cycle
		key := accessKey{stored.MaterialID, stored.StudentID}
		va, ok := repo.db.videoAccess[key]
		if !ok {
			va = &material.VideoAccess{MaterialID: stored.MaterialID, StudentID: stored.StudentID}
			repo.db.videoAccess[key] = va
		}
		va.AccessStartTime = nil
		va.ExtensionApproved = true
		if r.DecidedAt != nil {
			va.UpdatedAt = *r.DecidedAt
		}
	}
	return copyRequest(stored), nil
}

func copyRequest(r *extension.Request) extension.Request {
	cp := *r
	if r.DecidedAt != nil {
		t := *r.DecidedAt
		cp.DecidedAt = &t
	}
	return cp
}
