package config

import "github.com/coral-mesh/vmprof/internal/constants"

// SchemaVersion is the current config file version.
const SchemaVersion = "1"

// Config is the contents of vmprof.yaml. Fields with an env tag can be
// overridden from the environment.
type Config struct {
	Version string `yaml:"version"`
	// Scripts lists the scripts to profile, with forward slashes. An empty
	// list profiles every script.
	Scripts []string `yaml:"scripts,omitempty" env:"VMPROF_SCRIPTS"`
	// CallGraph enables caller/callee edge recording.
	CallGraph bool `yaml:"call_graph" env:"VMPROF_CALL_GRAPH"`
	// StackGrowth is "down" or "up".
	StackGrowth string `yaml:"stack_growth" env:"VMPROF_STACK_GROWTH"`
	// Symbols is a symbol table file used when none is given on the
	// command line.
	Symbols string       `yaml:"symbols,omitempty" env:"VMPROF_SYMBOLS"`
	Output  OutputConfig `yaml:"output"`
	Log     LogConfig    `yaml:"log"`
}

// OutputConfig controls where reports and snapshots go.
type OutputConfig struct {
	Format string `yaml:"format" env:"VMPROF_OUTPUT_FORMAT"`
	// Dir is where <script>.prof.<ext> reports are written.
	Dir string `yaml:"dir,omitempty" env:"VMPROF_OUTPUT_DIR"`
	// Database is the DuckDB file snapshots are stored in. Empty disables
	// storage.
	Database string `yaml:"database,omitempty" env:"VMPROF_DATABASE"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level" env:"VMPROF_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"VMPROF_LOG_PRETTY"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version:     SchemaVersion,
		CallGraph:   true,
		StackGrowth: constants.DefaultStackGrowth,
		Output: OutputConfig{
			Format: constants.DefaultReportFormat,
		},
		Log: LogConfig{
			Level:  constants.DefaultLogLevel,
			Pretty: true,
		},
	}
}
