package modulestate

import (
	"log"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
)

// ModuleState is the state shared by everything in one embedding session:
// the default connection, the import cache and the database instance cache.
//
// There should be a single ModuleState per interpreter. Its accessors must be called while
// holding the interpreter's lock, unless the lock is disabled, in which case ModuleState
// guards itself.
type ModuleState struct {
	interp *interp.Interpreter
	config engine.Config

	// mutex is only used when the interpreter lock is disabled.
	mutex sync.Mutex

	defaultConnection *engine.Connection
	importCache       *interp.ImportCache
	instanceCache     *engine.InstanceCache

	// ownedDatabases are the anonymous in-memory databases opened by this state, closed with it.
	ownedDatabases []*engine.Database

	environment Environment
	version     string
}

// New creates the module state and detects the environment. It acquires the interpreter lock itself.
func New(it *interp.Interpreter, config engine.Config) *ModuleState {
	state := &ModuleState{
		interp:        it,
		config:        config,
		instanceCache: engine.NewInstanceCache(),
		version:       "0.0",
	}

	if version, err := interp.RuntimeVersion(); err != nil {
		log.Printf("[WARN] couldn't detect runtime version: %s", err)
	} else {
		state.version = interp.FormatVersion(version)
	}

	it.Lock().With(func() error {
		state.environment = state.detectEnvironment()
		return nil
	})
	log.Printf("[DEBUG] module state initialized: runtime %s, %s environment", state.version, state.environment)
	return state
}

func (state *ModuleState) detectEnvironment() Environment {
	if state.interp.MainFile() != "" {
		return EnvironmentNormal
	}
	notebook, err := state.GetImportCache().IsNotebook()
	if err != nil {
		log.Printf("[WARN] couldn't probe notebook configuration: %s", err)
		return EnvironmentInteractive
	}
	if notebook {
		return EnvironmentNotebook
	}
	return EnvironmentInteractive
}

func (state *ModuleState) guard() (release func()) {
	if !state.interp.Lock().Disabled() {
		return func() {}
	}
	state.mutex.Lock()
	return state.mutex.Unlock
}

func (state *ModuleState) Interpreter() *interp.Interpreter {
	return state.interp
}

func (state *ModuleState) Environment() Environment {
	return state.environment
}

// FormattedVersion is the "major.minor" version of the Starlark runtime.
func (state *ModuleState) FormattedVersion() string {
	return state.version
}

// GetDefaultConnection returns the default connection, creating a new in-memory one
// if there is none or the previous one has been closed.
func (state *ModuleState) GetDefaultConnection() (*engine.Connection, error) {
	release := state.guard()
	defer release()

	if state.defaultConnection != nil && !state.defaultConnection.IsClosed() {
		return state.defaultConnection, nil
	}

	db, err := engine.Open(engine.InMemoryPath, state.config)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open default database")
	}
	conn, err := db.Connect()
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't connect to default database")
	}
	state.ownedDatabases = append(state.ownedDatabases, db)
	state.defaultConnection = conn
	log.Printf("[DEBUG] created default connection %s", conn.ID())
	return conn, nil
}

func (state *ModuleState) SetDefaultConnection(conn *engine.Connection) {
	release := state.guard()
	defer release()
	state.defaultConnection = conn
}

func (state *ModuleState) ClearDefaultConnection() {
	release := state.guard()
	defer release()
	state.defaultConnection = nil
}

func (state *ModuleState) GetImportCache() *interp.ImportCache {
	release := state.guard()
	defer release()
	if state.importCache == nil {
		state.importCache = interp.NewImportCache(state.interp)
	}
	return state.importCache
}

// ClearImportCache drops all resolved references, they're resolved again on next use.
func (state *ModuleState) ClearImportCache() {
	release := state.guard()
	defer release()
	state.importCache = nil
}

func (state *ModuleState) GetInstanceCache() *engine.InstanceCache {
	return state.instanceCache
}

func (state *ModuleState) GetOrCreateInstance(path string, config engine.Config, instantiate engine.InstantiateFunc) (*engine.Database, error) {
	release := state.guard()
	defer release()
	return state.instanceCache.GetOrCreateInstance(path, config, instantiate)
}

// Connect opens a connection to the database at path, sharing instances through the instance cache.
func (state *ModuleState) Connect(path string) (*engine.Connection, error) {
	db, err := state.GetOrCreateInstance(path, state.config, engine.Open)
	if err != nil {
		return nil, err
	}
	if engine.IsAnonymousInMemory(path) {
		release := state.guard()
		state.ownedDatabases = append(state.ownedDatabases, db)
		release()
	}
	return db.Connect()
}

// Close closes the default connection and every cached database.
func (state *ModuleState) Close() error {
	release := state.guard()
	defer release()

	var result error
	if state.defaultConnection != nil {
		if err := state.defaultConnection.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "couldn't close default connection"))
		}
		state.defaultConnection = nil
	}
	for _, db := range state.ownedDatabases {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "couldn't close database %s", db.ID()))
		}
	}
	state.ownedDatabases = nil
	if err := state.instanceCache.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}
