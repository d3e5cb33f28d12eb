package cmd

import (
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/cube2222/octostar/bindings"
	"github.com/cube2222/octostar/config"
	"github.com/cube2222/octostar/interp"
	"github.com/cube2222/octostar/modulestate"
)

// session wires an interpreter, its module state and the bindings.
type session struct {
	interp *interp.Interpreter
	state  *modulestate.ModuleState
	module *bindings.Module
}

func newSession(cfg *config.Config, stdout io.Writer) (*session, error) {
	interpreterConfig := cfg.InterpreterConfig()
	interpreterConfig.Stdout = stdout
	it, err := interp.New(interpreterConfig)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create interpreter")
	}
	engineConfig, err := cfg.EngineConfig()
	if err != nil {
		it.Close()
		return nil, errors.Wrap(err, "couldn't read engine config")
	}

	state := modulestate.New(it, engineConfig)
	module := bindings.New(state)
	if err := module.Install(); err != nil {
		state.Close()
		it.Close()
		return nil, errors.Wrap(err, "couldn't install bindings")
	}
	return &session{
		interp: it,
		state:  state,
		module: module,
	}, nil
}

func (s *session) Close() error {
	var result *multierror.Error
	if err := s.state.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	s.interp.Close()
	return result.ErrorOrNil()
}
