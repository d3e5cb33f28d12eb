package logs

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/pkg/errors"

	"github.com/cube2222/octostar/config"
)

var Output *os.File

// InitializeFileLogger truncates the log file in the octostar directory and returns it.
func InitializeFileLogger(dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "couldn't create %s directory", dir)
	}
	f, err := os.Create(filepath.Join(dir, "logs.txt"))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create logs file")
	}
	Output = f
	return f, nil
}

// Setup routes the standard logger through lgr. Without debug, [DEBUG] lines are dropped.
func Setup(cfg config.LoggingConfig, stderr io.Writer) error {
	var opts []lgr.Option
	if cfg.Debug {
		opts = append(opts, lgr.Debug, lgr.CallerFile, lgr.Msec)
	}
	opts = append(opts, lgr.LevelBraces)

	if cfg.File {
		f, err := InitializeFileLogger(config.OctostarDir)
		if err != nil {
			return err
		}
		opts = append(opts, lgr.Out(f), lgr.Err(f))
	} else {
		opts = append(opts, lgr.Out(stderr), lgr.Err(stderr), lgr.Map(colorizer))
	}

	lgr.SetupStdLogger(opts...)
	lgr.Setup(opts...)
	return nil
}

var colorizer = lgr.Mapper{
	ErrorFunc: func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
	WarnFunc:  func(s string) string { return color.New(color.FgRed).Sprint(s) },
	InfoFunc:  func(s string) string { return color.New(color.FgYellow).Sprint(s) },
	DebugFunc: func(s string) string { return color.New(color.FgWhite).Sprint(s) },
	TimeFunc:  func(s string) string { return color.New(color.FgCyan).Sprint(s) },
}

func CloseLogger() {
	if Output == nil {
		return
	}
	log.SetOutput(os.Stderr)
	Output.Close()
	Output = nil
}
