package engine

import (
	"crypto/rand"
	"log"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

const InMemoryPath = ":memory:"

// IsAnonymousInMemory reports whether the path names an in-memory database
// which has no identity, so every open yields a fresh instance.
func IsAnonymousInMemory(path string) bool {
	return path == "" || path == InMemoryPath
}

// Database is a single engine instance: a configuration and a function catalog.
type Database struct {
	id      ulid.ULID
	path    string
	config  Config
	catalog *Catalog

	mutex       sync.Mutex
	connections map[*Connection]struct{}
	closed      bool
}

func Open(path string, config Config) (*Database, error) {
	if strings.ContainsRune(path, 0) {
		return nil, InvalidInputErrorf("invalid database path: '%s'", path)
	}
	if config.Threads < 1 {
		config.Threads = 1
	}

	db := &Database{
		id:          ulid.MustNew(ulid.Now(), rand.Reader),
		path:        path,
		config:      config,
		catalog:     NewCatalog(),
		connections: map[*Connection]struct{}{},
	}
	for _, function := range builtinTableFunctions() {
		if err := db.catalog.CreateTableFunction(function); err != nil {
			return nil, err
		}
	}
	log.Printf("[DEBUG] opened database %s at '%s'", db.id, path)
	return db, nil
}

func (db *Database) ID() string {
	return db.id.String()
}

func (db *Database) Path() string {
	return db.path
}

func (db *Database) Config() Config {
	return db.config
}

func (db *Database) Catalog() *Catalog {
	return db.catalog
}

func (db *Database) Connect() (*Connection, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if db.closed {
		return nil, NewError(ErrorKindConnection, "Database '%s' is closed", db.path)
	}

	conn := newConnection(db)
	db.connections[conn] = struct{}{}
	return conn, nil
}

func (db *Database) IsClosed() bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	return db.closed
}

// Close closes every connection still open on this database.
func (db *Database) Close() error {
	db.mutex.Lock()
	if db.closed {
		db.mutex.Unlock()
		return nil
	}
	db.closed = true
	connections := make([]*Connection, 0, len(db.connections))
	for conn := range db.connections {
		connections = append(connections, conn)
	}
	db.mutex.Unlock()

	var firstErr error
	for _, conn := range connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	log.Printf("[DEBUG] closed database %s", db.id)
	return firstErr
}

func (db *Database) forgetConnection(conn *Connection) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	delete(db.connections, conn)
}
