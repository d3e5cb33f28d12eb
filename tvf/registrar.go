package tvf

import (
	"log"
	"sort"
	"sync"

	"go.starlark.net/starlark"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/octosql"
)

// Registrar registers Starlark callables as table functions and tracks them per connection.
type Registrar struct {
	interp *interp.Interpreter

	mutex      sync.Mutex
	registered map[*engine.Connection]map[string]*Descriptor
}

func NewRegistrar(it *interp.Interpreter) *Registrar {
	return &Registrar{
		interp:     it,
		registered: map[*engine.Connection]map[string]*Descriptor{},
	}
}

// Register validates the schema and variant, and adds the callable to the connection's catalog.
// The caller must hold the lock, as the schema is a Starlark value.
func (r *Registrar) Register(conn *engine.Connection, name string, callable starlark.Callable, parameters []string, schema starlark.Value, variant interface{}) (*Descriptor, error) {
	if conn.IsClosed() {
		return nil, engine.ErrConnectionClosed
	}
	resolvedVariant, err := ParseVariant(variant)
	if err != nil {
		return nil, err
	}
	parsedSchema, err := ParseSchema(name, schema)
	if err != nil {
		return nil, err
	}

	descriptor := &Descriptor{
		Name:       name,
		Callable:   callable,
		Schema:     parsedSchema,
		Parameters: parameters,
		Variant:    resolvedVariant,
		interp:     r.interp,
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	functions, ok := r.registered[conn]
	if !ok {
		functions = map[string]*Descriptor{}
	}
	if _, ok := functions[name]; ok {
		return nil, engine.NotImplementedErrorf("A table function by the name of '%s' is already registered, unregister it first", name)
	}
	if err := conn.CreateTableFunction(newTableFunction(descriptor)); err != nil {
		return nil, err
	}
	if !ok {
		r.registered[conn] = functions
		conn.OnClose(func() error {
			return r.unregisterAll(conn)
		})
	}
	functions[name] = descriptor

	log.Printf("[DEBUG] registered %s table function %s on connection %s", resolvedVariant, name, conn.ID())
	return descriptor, nil
}

// Unregister removes a function registered through this connection.
func (r *Registrar) Unregister(conn *engine.Connection, name string) error {
	if conn.IsClosed() {
		return engine.ErrConnectionClosed
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	functions := r.registered[conn]
	if _, ok := functions[name]; !ok {
		return engine.InvalidInputErrorf("No table function by the name of '%s'", name)
	}
	if err := conn.DropTableFunction(name); err != nil {
		return err
	}
	delete(functions, name)
	log.Printf("[DEBUG] unregistered table function %s on connection %s", name, conn.ID())
	return nil
}

// Registered lists the functions registered through the connection, in ascending order.
func (r *Registrar) Registered(conn *engine.Connection) []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]string, 0, len(r.registered[conn]))
	for name := range r.registered[conn] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// unregisterAll runs when the connection closes, releasing the callables it registered.
func (r *Registrar) unregisterAll(conn *engine.Connection) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	var firstErr error
	for name := range r.registered[conn] {
		if err := conn.Database().Catalog().DropTableFunction(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	delete(r.registered, conn)
	return firstErr
}

func newTableFunction(descriptor *Descriptor) *engine.TableFunction {
	named := map[string]octosql.Type{
		"args": octosql.Any,
	}
	for _, parameter := range descriptor.Parameters {
		named[parameter] = octosql.Any
	}

	var impl variant
	switch descriptor.Variant {
	case VariantColumnar:
		impl = columnarVariant{}
	default:
		impl = rowIterVariant{}
	}

	varargs := octosql.Any
	return &engine.TableFunction{
		Name:            descriptor.Name,
		Varargs:         &varargs,
		NamedParameters: named,
		Bind:            bind,
		InitGlobal:      impl.InitGlobal,
		InitLocal:       impl.InitLocal,
		Scan:            impl.Scan,
		Info:            descriptor,
	}
}

// variant is the execution contract shared by the row iterator and the columnar variants.
type variant interface {
	InitGlobal(ctx *engine.ClientContext, input *engine.InitInput) (engine.GlobalState, error)
	InitLocal(ctx *engine.ClientContext, input *engine.InitInput, global engine.GlobalState) (engine.LocalState, error)
	Scan(ctx *engine.ClientContext, input *engine.ScanInput, output *engine.DataChunk) error
}
