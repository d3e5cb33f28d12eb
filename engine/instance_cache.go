package engine

import (
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// InstantiateFunc opens a database which isn't cached yet.
type InstantiateFunc func(path string, config Config) (*Database, error)

// InstanceCache maps database paths to open database instances, so that
// connecting twice to the same path shares the catalog.
type InstanceCache struct {
	mutex     sync.Mutex
	instances map[string]*Database
}

func NewInstanceCache() *InstanceCache {
	return &InstanceCache{
		instances: map[string]*Database{},
	}
}

func instanceKey(path string) string {
	if strings.HasPrefix(path, InMemoryPath) {
		return path
	}
	return filepath.Clean(path)
}

// GetOrCreateInstance returns the open database for path, creating it with instantiate if there is none.
// Anonymous in-memory databases are never cached.
func (cache *InstanceCache) GetOrCreateInstance(path string, config Config, instantiate InstantiateFunc) (*Database, error) {
	if instantiate == nil {
		instantiate = Open
	}
	if IsAnonymousInMemory(path) {
		return instantiate(path, config)
	}

	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	key := instanceKey(path)
	if db, ok := cache.instances[key]; ok {
		if !db.IsClosed() {
			if !sameConfig(db.Config(), config) {
				return nil, NewError(ErrorKindConnection, "Can't open a connection to same database file with a different configuration than existing connections")
			}
			return db, nil
		}
		delete(cache.instances, key)
	}

	db, err := instantiate(path, config)
	if err != nil {
		return nil, err
	}
	cache.instances[key] = db
	log.Printf("[DEBUG] cached database instance '%s'", key)
	return db, nil
}

func sameConfig(left, right Config) bool {
	if right.Threads < 1 {
		right.Threads = 1
	}
	return left.Threads == right.Threads && left.EnableProgressBar == right.EnableProgressBar
}

// Paths lists the cached database paths in ascending order.
func (cache *InstanceCache) Paths() []string {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	out := make([]string, 0, len(cache.instances))
	for key := range cache.instances {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Close closes every cached database and empties the cache.
func (cache *InstanceCache) Close() error {
	cache.mutex.Lock()
	instances := cache.instances
	cache.instances = map[string]*Database{}
	cache.mutex.Unlock()

	var result error
	for key, db := range instances {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "couldn't close database '%s'", key))
		}
	}
	return result
}
