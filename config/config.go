package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cube2222/octostar/engine"
	"github.com/cube2222/octostar/interp"
)

var OctostarDir = func() string {
	dir, err := homedir.Dir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".octostar")
}()

func DefaultPath() string {
	return filepath.Join(OctostarDir, "config.yml")
}

type InterpreterConfig struct {
	DisableGlobalLock bool  `yaml:"disableGlobalLock"`
	ProgramCacheSize  int64 `yaml:"programCacheSize"`
}

type Config struct {
	Interpreter InterpreterConfig      `yaml:"interpreter"`
	Engine      map[string]interface{} `yaml:"engine"`
	Logging     map[string]interface{} `yaml:"logging"`
}

// ReadConfig reads the configuration file. A missing file at the default path yields an empty configuration.
func ReadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath() {
			return &Config{}, nil
		}
		return nil, errors.Wrap(err, "couldn't open file")
	}
	defer f.Close()

	var config Config

	err = yaml.NewDecoder(f).Decode(&config)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't decode yaml configuration")
	}

	cleanupMaps(config.Engine)
	cleanupMaps(config.Logging)

	return &config, nil
}

func (config *Config) InterpreterConfig() interp.Config {
	return interp.Config{
		DisableGlobalLock: config.Interpreter.DisableGlobalLock,
		ProgramCacheSize:  config.Interpreter.ProgramCacheSize,
	}
}

func (config *Config) EngineConfig() (engine.Config, error) {
	out := engine.DefaultConfig()
	if config.Engine == nil {
		return out, nil
	}

	threads, err := GetInt(config.Engine, "threads", WithDefault(runtime.GOMAXPROCS(0)))
	if err != nil {
		return engine.Config{}, errors.Wrap(err, "couldn't get threads")
	}
	if threads < 1 {
		return engine.Config{}, errors.Errorf("threads must be positive, got %d", threads)
	}
	out.Threads = threads

	out.EnableProgressBar, err = GetBool(config.Engine, "progressBar", WithDefault(false))
	if err != nil {
		return engine.Config{}, errors.Wrap(err, "couldn't get progressBar")
	}
	progressOutput, err := GetString(config.Engine, "progressOutput", WithDefault("stderr"))
	if err != nil {
		return engine.Config{}, errors.Wrap(err, "couldn't get progressOutput")
	}
	switch progressOutput {
	case "stderr":
		out.ProgressOutput = os.Stderr
	case "stdout":
		out.ProgressOutput = os.Stdout
	default:
		return engine.Config{}, errors.Errorf("progressOutput must be stderr or stdout, got '%s'", progressOutput)
	}

	return out, nil
}

type LoggingConfig struct {
	Debug bool
	// File redirects the log to logs.txt in the octostar directory.
	File bool
}

func (config *Config) LoggingConfig() (LoggingConfig, error) {
	if config.Logging == nil {
		return LoggingConfig{}, nil
	}
	debug, err := GetBool(config.Logging, "debug", WithDefault(false))
	if err != nil {
		return LoggingConfig{}, errors.Wrap(err, "couldn't get debug")
	}
	file, err := GetBool(config.Logging, "file", WithDefault(false))
	if err != nil {
		return LoggingConfig{}, errors.Wrap(err, "couldn't get file")
	}
	return LoggingConfig{Debug: debug, File: file}, nil
}

// The yaml decoder creates maps of type map[interface{}]interface{} for non-string keys.
// cleanupMaps will change them to map[string]interface{}.
func cleanupMaps(config map[string]interface{}) {
	for k, v := range config {
		config[k] = cleanupMapsRecursive(v)
	}
}

func cleanupMapsRecursive(config interface{}) interface{} {
	switch config := config.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{})
		for k, v := range config {
			out[fmt.Sprintf("%v", k)] = cleanupMapsRecursive(v)
		}
		return out
	case map[string]interface{}:
		for k, v := range config {
			config[k] = cleanupMapsRecursive(v)
		}
	case []interface{}:
		for i := range config {
			config[i] = cleanupMapsRecursive(config[i])
		}
	}

	return config
}
