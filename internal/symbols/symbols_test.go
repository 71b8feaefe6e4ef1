package symbols

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/vmprof/internal/profiler"
)

const sample = `
symbols:
  - address: 0x08
    name: OnGameModeInit
    kind: public
  - address: 0x1F0
    name: CountPlayers
  - address: 0x0
    name: main
    kind: main
`

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	name, kind, ok := table.Resolve(0x08)
	assert.True(t, ok)
	assert.Equal(t, "OnGameModeInit", name)
	assert.Equal(t, profiler.KindPublic, kind)

	name, kind, ok = table.Resolve(0x1F0)
	assert.True(t, ok)
	assert.Equal(t, "CountPlayers", name)
	assert.Equal(t, profiler.KindNormal, kind)

	_, kind, _ = table.Resolve(0)
	assert.Equal(t, profiler.KindMain, kind)

	_, _, ok = table.Resolve(0x99)
	assert.False(t, ok)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "missing name", input: "symbols:\n  - address: 4\n", want: "has no name"},
		{name: "bad kind", input: "symbols:\n  - address: 4\n    name: f\n    kind: weird\n", want: "unknown function kind"},
		{name: "unknown field", input: "symbols:\n  - address: 4\n    name: f\n    line: 3\n", want: "failed to decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseEmpty(t *testing.T) {
	for _, input := range []string{"", "# no symbols yet\n", "\n\n"} {
		table, err := Parse(strings.NewReader(input))
		require.NoError(t, err, "input %q", input)
		assert.Zero(t, table.Len())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.sym.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0600))

	table, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNilTableResolvesNothing(t *testing.T) {
	var table *Table
	_, _, ok := table.Resolve(1)
	assert.False(t, ok)
}

func TestTableAsResolver(t *testing.T) {
	table := NewTable()
	table.Add(0x10, "Tick", profiler.KindPublic)

	p := profiler.New(profiler.Options{Resolver: table})
	p.OnExportEnter(0x10)
	p.OnExportLeave()

	fs, ok := p.Snapshot().Statistics.Get(0x10)
	require.True(t, ok)
	assert.Equal(t, "Tick", fs.Function.Name)
	assert.Equal(t, int64(1), fs.NumCalls)
}
