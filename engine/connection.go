package engine

import (
	"context"
	"crypto/rand"
	"log"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/cube2222/octostar/octosql"
)

// Connection is a client session on a Database.
type Connection struct {
	id ulid.ULID
	db *Database

	mutex   sync.Mutex
	closed  bool
	onClose []func() error
}

func newConnection(db *Database) *Connection {
	return &Connection{
		id: ulid.MustNew(ulid.Now(), rand.Reader),
		db: db,
	}
}

func (conn *Connection) ID() string {
	return conn.id.String()
}

func (conn *Connection) Database() *Database {
	return conn.db
}

func (conn *Connection) IsClosed() bool {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	return conn.closed
}

// OnClose registers a hook run when the connection is closed. Hooks run in reverse order of registration.
func (conn *Connection) OnClose(hook func() error) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	conn.onClose = append(conn.onClose, hook)
}

func (conn *Connection) Close() error {
	conn.mutex.Lock()
	if conn.closed {
		conn.mutex.Unlock()
		return nil
	}
	conn.closed = true
	hooks := conn.onClose
	conn.onClose = nil
	conn.mutex.Unlock()

	var firstErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "couldn't run connection close hook")
		}
	}
	conn.db.forgetConnection(conn)
	log.Printf("[DEBUG] closed connection %s", conn.id)
	return firstErr
}

func (conn *Connection) checkOpen() error {
	if conn.IsClosed() {
		return errors.WithStack(ErrConnectionClosed)
	}
	return nil
}

func (conn *Connection) CreateTableFunction(function *TableFunction) error {
	if err := conn.checkOpen(); err != nil {
		return err
	}
	return conn.db.catalog.CreateTableFunction(function)
}

func (conn *Connection) DropTableFunction(name string) error {
	if err := conn.checkOpen(); err != nil {
		return err
	}
	return conn.db.catalog.DropTableFunction(name)
}

func (conn *Connection) ListTableFunctions() ([]string, error) {
	if err := conn.checkOpen(); err != nil {
		return nil, err
	}
	return conn.db.catalog.ListTableFunctions(), nil
}

// TableFunction runs the named table function with the given arguments and materializes its result.
func (conn *Connection) TableFunction(ctx context.Context, name string, positional []octosql.Value, named map[string]octosql.Value) (*Result, error) {
	if err := conn.checkOpen(); err != nil {
		return nil, err
	}
	function, err := conn.db.catalog.GetTableFunction(name)
	if err != nil {
		return nil, err
	}
	return conn.execute(ctx, function, positional, named)
}

func (conn *Connection) newClientContext() *ClientContext {
	config := conn.db.config
	return &ClientContext{
		Connection: conn,
		QueryID:    ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Config: ClientConfig{
			Threads:           config.Threads,
			EnableProgressBar: config.EnableProgressBar,
			ProgressOutput:    config.ProgressOutput,
		},
	}
}
