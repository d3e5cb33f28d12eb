package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/gosuri/uilive"
)

const progressRefreshInterval = 100 * time.Millisecond

type progressBar struct {
	name string

	mutex      sync.Mutex
	writer     *uilive.Writer
	rows       int
	lastUpdate time.Time
}

// newProgressBar returns nil when progress reporting is disabled. A nil *progressBar is a valid no-op.
func newProgressBar(name string, config ClientConfig) *progressBar {
	if !config.EnableProgressBar || config.ProgressOutput == nil {
		return nil
	}
	writer := uilive.New()
	writer.Out = config.ProgressOutput
	return &progressBar{
		name:   name,
		writer: writer,
	}
}

func (bar *progressBar) Add(rows int) {
	if bar == nil {
		return
	}
	bar.mutex.Lock()
	defer bar.mutex.Unlock()

	bar.rows += rows
	if time.Since(bar.lastUpdate) < progressRefreshInterval {
		return
	}
	bar.lastUpdate = time.Now()
	bar.render()
}

func (bar *progressBar) Finish() {
	if bar == nil {
		return
	}
	bar.mutex.Lock()
	defer bar.mutex.Unlock()
	bar.render()
}

func (bar *progressBar) render() {
	fmt.Fprintf(bar.writer, "%s: %d rows\n", bar.name, bar.rows)
	bar.writer.Flush()
}
