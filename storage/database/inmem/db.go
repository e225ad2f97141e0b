// Package inmemdb implements the core repositories in memory. Used by tests and the demo server.
package inmemdb

import (
	"sort"
	"sync"

	"github.com/trezcool/masomo-materials/core"
	"github.com/trezcool/masomo-materials/core/class"
	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
	"github.com/trezcool/masomo-materials/core/user"
)

type accessKey struct {
	materialID, studentID string
}

type subscriptionKey struct {
	classID, studentID string
}

// DB guards all tables with one lock so that multi-table writes stay atomic.
type DB struct {
	mutex sync.RWMutex

	users         map[string]*user.User
	classes       map[string]*class.Class
	subscriptions map[subscriptionKey]*class.Subscription
	materials     map[string]*material.Material
	videoAccess   map[accessKey]*material.VideoAccess
	extensions    map[string]*extension.Request
}

func Open() *DB {
	db := &DB{}
	db.Reset()
	return db
}

// Reset drops every row.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.users = make(map[string]*user.User)
	db.classes = make(map[string]*class.Class)
	db.subscriptions = make(map[subscriptionKey]*class.Subscription)
	db.materials = make(map[string]*material.Material)
	db.videoAccess = make(map[accessKey]*material.VideoAccess)
	db.extensions = make(map[string]*extension.Request)
}

// order sorts items following ordering; cmp compares one field of a and b (-1, 0, 1).
func order[T any](items []T, ordering []core.DBOrdering, cmp func(field string, a, b T) int) {
	sort.SliceStable(items, func(i, j int) bool {
		for _, ord := range ordering {
			c := cmp(ord.Field, items[i], items[j])
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}
