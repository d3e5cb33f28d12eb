package engine

import (
	"context"
	"log"
	"sync"

	"github.com/go-pkgz/syncs"
	"github.com/pkg/errors"

	"github.com/cube2222/octostar/octosql"
)

func (conn *Connection) execute(ctx context.Context, function *TableFunction, positional []octosql.Value, named map[string]octosql.Value) (result *Result, err error) {
	if err := function.checkArguments(positional, named); err != nil {
		return nil, err
	}
	clientCtx := conn.newClientContext()

	bindData, schema, err := function.Bind(clientCtx, &BindInput{
		Function:        function,
		Info:            function.Info,
		Inputs:          positional,
		NamedParameters: named,
	})
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, InternalErrorf("table function %s bound to an empty schema", function.Name)
	}

	columnIDs := make([]int, len(schema))
	for i := range columnIDs {
		columnIDs[i] = i
	}
	initInput := &InitInput{
		BindData:  bindData,
		ColumnIDs: columnIDs,
	}

	var global GlobalState
	if function.InitGlobal != nil {
		global, err = function.InitGlobal(clientCtx, initInput)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		if closeErr := closeState(global); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "couldn't close global state")
		}
	}()

	threads := 1
	if function.InitLocal != nil {
		if parallel, ok := global.(ParallelGlobalState); ok {
			threads = clientCtx.Config.Threads
			if maxThreads := parallel.MaxThreads(); maxThreads < threads {
				threads = maxThreads
			}
		}
	}
	if threads < 1 {
		threads = 1
	}

	progress := newProgressBar(function.Name, clientCtx.Config)
	result = &Result{Schema: schema}
	var resultMutex sync.Mutex
	sink := func(chunk *DataChunk) {
		resultMutex.Lock()
		result.Chunks = append(result.Chunks, chunk)
		resultMutex.Unlock()
		progress.Add(chunk.Cardinality())
	}

	worker := &scanWorker{
		ctx:       ctx,
		clientCtx: clientCtx,
		function:  function,
		initInput: initInput,
		global:    global,
		types:     schema.Types(),
		sink:      sink,
	}

	if threads == 1 {
		err = worker.Run()
	} else {
		err = runParallel(ctx, threads, worker)
	}
	progress.Finish()
	if err != nil {
		return nil, err
	}

	log.Printf("[DEBUG] query %s: table function %s produced %d rows using %d threads", clientCtx.QueryID, function.Name, result.RowCount(), threads)
	return result, nil
}

func runParallel(ctx context.Context, threads int, worker *scanWorker) error {
	// syncs joins the errors of all workers into one message, we want the first one with its kind intact.
	var firstErr error
	var errMutex sync.Mutex

	group := syncs.NewErrSizedGroup(threads, syncs.Context(ctx), syncs.Preemptive)
	for i := 0; i < threads; i++ {
		group.Go(func() error {
			err := worker.Run()
			if err != nil {
				errMutex.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMutex.Unlock()
			}
			return err
		})
	}
	groupErr := group.Wait()
	if firstErr != nil {
		return firstErr
	}
	if groupErr != nil {
		return errors.Wrap(groupErr, "couldn't run scan workers")
	}
	return nil
}

type scanWorker struct {
	ctx       context.Context
	clientCtx *ClientContext
	function  *TableFunction
	initInput *InitInput
	global    GlobalState
	types     []octosql.Type
	sink      func(chunk *DataChunk)
}

func (w *scanWorker) Run() (err error) {
	var local LocalState
	if w.function.InitLocal != nil {
		local, err = w.function.InitLocal(w.clientCtx, w.initInput, w.global)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := closeState(local); closeErr != nil && err == nil {
				err = errors.Wrap(closeErr, "couldn't close local state")
			}
		}()
	}

	scanInput := &ScanInput{
		BindData:    w.initInput.BindData,
		LocalState:  local,
		GlobalState: w.global,
	}
	for {
		if ctxErr := w.ctx.Err(); ctxErr != nil {
			return NewError(ErrorKindInterrupt, "Interrupted!")
		}
		chunk := NewDataChunk(w.types)
		if err := w.function.Scan(w.clientCtx, scanInput, chunk); err != nil {
			return err
		}
		if chunk.Cardinality() == 0 {
			return nil
		}
		w.sink(chunk)
	}
}
