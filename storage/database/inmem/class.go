package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
)

type classRepository struct {
	db *DB
}

var _ class.Repository = (*classRepository)(nil) // interface compliance check

func NewClassRepository(db *DB) class.Repository {
	return &classRepository{db: db}
}

func (repo *classRepository) CreateClass(_ context.Context, cls class.Class, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *classRepository) GetClass(_ context.Context, id string, _ ...core.DBExecutor) (class.Class, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return *cls, nil
	}
	return class.Class{}, class.ErrNotFound
}

func (repo *classRepository) GetSubscription(_ context.Context, classID, studentID string, _ ...core.DBExecutor) (class.Subscription, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sub, ok := repo.db.subscriptions[subscriptionKey{classID, studentID}]; ok {
		return *sub, nil
	}
	return class.Subscription{}, class.ErrNotFound
}

func (repo *classRepository) SaveSubscription(_ context.Context, sub class.Subscription, _ ...core.DBExecutor) (class.Subscription, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[sub.ClassID]; !ok {
		return class.Subscription{}, class.ErrNotFound
	}
	key := subscriptionKey{sub.ClassID, sub.StudentID}
	if existing, ok := repo.db.subscriptions[key]; ok {
		sub.CreatedAt = existing.CreatedAt
	}
	repo.db.subscriptions[key] = &sub
	return sub, nil
}
