package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/coral-mesh/vmprof/internal/profiler"
	"github.com/coral-mesh/vmprof/internal/report"
)

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate checks enumerated values. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if _, err := profiler.ParseStackGrowth(c.StackGrowth); err != nil {
		errs = append(errs, err)
	}
	if _, err := report.ParseFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("invalid log level %q (want one of %v)", c.Log.Level, logLevels))
	}
	for _, s := range c.Scripts {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("scripts must not contain empty names"))
			break
		}
	}
	return errors.Join(errs...)
}

// Growth returns the parsed stack growth, defaulting to downward.
func (c *Config) Growth() profiler.StackGrowth {
	g, err := profiler.ParseStackGrowth(c.StackGrowth)
	if err != nil {
		return profiler.GrowsDown
	}
	return g
}

// PortablePath replaces backslashes with forward slashes.
func PortablePath(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// WantsProfile reports whether script is selected for profiling. Names are
// compared exactly after converting separators.
func (c *Config) WantsProfile(script string) bool {
	if len(c.Scripts) == 0 {
		return true
	}
	return slices.Contains(c.Scripts, PortablePath(script))
}
