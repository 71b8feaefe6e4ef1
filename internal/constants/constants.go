// Package constants defines shared configuration constants.
package constants

import "time"

const (
	// DefaultDir is the per-user directory under the home directory.
	DefaultDir = ".vmprof"

	ConfigFile = "config.yaml"

	// FallbackConfigFile is used when there is no home directory.
	FallbackConfigFile = "vmprof.yaml"

	// EnvConfig names an explicit config file.
	EnvConfig = "VMPROF_CONFIG"

	DefaultReportFormat = "text"

	DefaultStackGrowth = "down"

	DefaultLogLevel = "info"

	// ReportSuffix is inserted between script name and format extension:
	// race -> race.prof.txt.
	ReportSuffix = ".prof"

	// SymbolsSuffix names the symbol table found next to a trace:
	// race.trace -> race.symbols.yaml.
	SymbolsSuffix = ".symbols.yaml"

	// DatabaseOpenAttempts bounds retries while another process holds the
	// DuckDB file lock.
	DatabaseOpenAttempts = 5

	DatabaseOpenBackoff = 100 * time.Millisecond
)
