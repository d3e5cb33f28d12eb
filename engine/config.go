package engine

import (
	"io"
	"runtime"
)

// Config is the database-wide configuration, copied into every connection.
type Config struct {
	// Threads is the maximum number of workers scanning a single parallel table function.
	Threads int
	// EnableProgressBar turns on progress reporting of long running table function scans.
	EnableProgressBar bool
	// ProgressOutput receives the progress bar. Progress isn't printed when it's nil.
	ProgressOutput io.Writer
}

func DefaultConfig() Config {
	return Config{
		Threads: runtime.GOMAXPROCS(0),
	}
}

// ClientConfig is the per-query view of the configuration, which functions may adjust during Bind.
type ClientConfig struct {
	Threads                  int
	EnableProgressBar        bool
	ProgressBarDisableReason string
	ProgressOutput           io.Writer
}

// ClientContext is handed to every table function callback of a single query.
type ClientContext struct {
	Connection *Connection
	QueryID    string
	Config     ClientConfig
}

// DisableProgressBar turns off progress reporting for the rest of the query.
func (ctx *ClientContext) DisableProgressBar(reason string) {
	ctx.Config.EnableProgressBar = false
	ctx.Config.ProgressBarDisableReason = reason
}
