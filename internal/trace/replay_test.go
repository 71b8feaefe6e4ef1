package trace

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/vmprof/internal/clock"
	"github.com/coral-mesh/vmprof/internal/profiler"
	"github.com/coral-mesh/vmprof/internal/testutil"
)

// Export call into a public that calls a function and a native.
const sampleTrace = `
# public 0x08 -> 0x1F0 -> native 0x9000
{"ts":0,"event":"export_enter","address":8}
{"ts":1000,"event":"step","fp":16380}
{"ts":2000,"event":"enter","address":496,"fp":16360}
{"ts":3000,"event":"native_enter","address":36864}
{"ts":7000,"event":"native_leave"}
{"ts":8000,"event":"step","fp":16380}
{"ts":10000,"event":"export_leave"}
`

func TestReplay(t *testing.T) {
	c := clock.NewManual(0)
	p := profiler.New(profiler.Options{Clock: c, Logger: testutil.NewTestLogger(t)})
	rp := NewReplayer(c, testutil.NewTestLogger(t))

	res, err := rp.Replay(context.Background(), strings.NewReader(sampleTrace), p)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Events)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 10*time.Microsecond, res.Last-res.First)

	snap := p.Snapshot()
	assert.Equal(t, 0, snap.OpenFrames)

	pub, _ := snap.Statistics.Get(8)
	assert.Equal(t, 10*time.Microsecond, pub.TotalTime)
	assert.Equal(t, 6*time.Microsecond, pub.ChildTime)

	fn, _ := snap.Statistics.Get(496)
	assert.Equal(t, 6*time.Microsecond, fn.TotalTime)
	assert.Equal(t, 4*time.Microsecond, fn.ChildTime)

	native, _ := snap.Statistics.Get(36864)
	assert.Equal(t, profiler.KindNative, native.Function.Kind)
	assert.Equal(t, 4*time.Microsecond, native.TotalTime)
	assert.Zero(t, snap.Anomalies.Total())
}

func TestReplayMalformedLines(t *testing.T) {
	input := `{"ts":0,"event":"enter","address":1,"fp":100}
not json
{"ts":5,"event":"teleport"}
{"ts":9,"event":"step","fp":200}
`
	t.Run("lenient", func(t *testing.T) {
		c := clock.NewManual(0)
		var logs bytes.Buffer
		p := profiler.New(profiler.Options{Clock: c, Logger: testutil.NewTestLogger(t)})
		res, err := NewReplayer(c, zerolog.New(&logs)).Replay(context.Background(), strings.NewReader(input), p)
		require.NoError(t, err)
		assert.Equal(t, 2, res.Events)
		assert.Equal(t, 2, res.Skipped)
		assert.Contains(t, logs.String(), "Skipping malformed trace line")

		fs, _ := p.Snapshot().Statistics.Get(1)
		assert.Equal(t, time.Duration(9), fs.TotalTime)
	})

	t.Run("strict", func(t *testing.T) {
		c := clock.NewManual(0)
		rp := NewReplayer(c, testutil.NewTestLogger(t))
		rp.Strict = true
		_, err := rp.Replay(context.Background(), strings.NewReader(input), profiler.New(profiler.Options{Clock: c}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 2")
	})
}

func TestReplayHonoursCancellation(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < checkEvery*2; i++ {
		sb.WriteString(`{"ts":1,"event":"step","fp":1}` + "\n")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := clock.NewManual(0)
	res, err := NewReplayer(c, testutil.NewTestLogger(t)).Replay(ctx, strings.NewReader(sb.String()), profiler.New(profiler.Options{Clock: c}))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, checkEvery, res.Events)
}

func TestEventValidate(t *testing.T) {
	assert.NoError(t, Event{Kind: KindStep}.Validate())
	assert.Error(t, Event{}.Validate())
	assert.Error(t, Event{Kind: "jump"}.Validate())
}

func TestReplayRebasesTimestamps(t *testing.T) {
	input := `{"ts":5000000000,"event":"enter","address":1,"fp":100}
{"ts":5000000300,"event":"enter","address":2,"fp":90}
{"ts":5000000900,"event":"step","fp":100}
`
	c := clock.NewManual(0)
	p := profiler.New(profiler.Options{Clock: c, Logger: testutil.NewTestLogger(t)})

	res, err := NewReplayer(c, testutil.NewTestLogger(t)).Replay(context.Background(), strings.NewReader(input), p)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, res.First)
	assert.Equal(t, 900*time.Nanosecond, c.Now())

	snap := p.Detach()
	assert.Equal(t, 900*time.Nanosecond, snap.Elapsed)
	callee, _ := snap.Statistics.Get(2)
	assert.Equal(t, 600*time.Nanosecond, callee.TotalTime)
}
