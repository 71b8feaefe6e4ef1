package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coral-mesh/vmprof/internal/profiler"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "upward growth", mutate: func(c *Config) { c.StackGrowth = "up" }},
		{name: "format case insensitive", mutate: func(c *Config) { c.Output.Format = "HTML" }},
		{name: "bad growth", mutate: func(c *Config) { c.StackGrowth = "left" }, wantErr: "stack growth"},
		{name: "bad format", mutate: func(c *Config) { c.Output.Format = "csv" }, wantErr: "report format"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log level"},
		{name: "empty script", mutate: func(c *Config) { c.Scripts = []string{"a.amx", " "} }, wantErr: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.StackGrowth = "left"
	cfg.Log.Level = "loud"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "stack growth")
	assert.ErrorContains(t, err, "log level")
}

func TestGrowth(t *testing.T) {
	cfg := Default()
	assert.Equal(t, profiler.GrowsDown, cfg.Growth())
	cfg.StackGrowth = "up"
	assert.Equal(t, profiler.GrowsUp, cfg.Growth())
}

func TestWantsProfile(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.WantsProfile("anything.amx"), "empty list selects every script")

	cfg.Scripts = []string{"gamemodes/race.amx"}
	assert.True(t, cfg.WantsProfile("gamemodes/race.amx"))
	assert.True(t, cfg.WantsProfile(`gamemodes\race.amx`))
	assert.False(t, cfg.WantsProfile("race.amx"))
	assert.False(t, cfg.WantsProfile("gamemodes/RACE.amx"))
}
