package profiler

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatisticsGetOrCreate(t *testing.T) {
	s := NewStatistics()

	first := s.GetOrCreate(0x10, "foo", KindPublic)
	assert.Equal(t, Function{Address: 0x10, Name: "foo", Kind: KindPublic}, first.Function)
	assert.Zero(t, first.NumCalls)

	// Idempotent: name and kind of an existing entry stay untouched.
	again := s.GetOrCreate(0x10, "bar", KindNative)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, s.Len())

	anon := s.GetOrCreate(0x2A, "", KindNormal)
	assert.Equal(t, "0x0000002A", anon.Function.Name)
}

func TestStatisticsLookup(t *testing.T) {
	s := NewStatistics()
	_, ok := s.Lookup(0x10)
	assert.False(t, ok)

	s.GetOrCreate(0x10, "foo", KindNormal)
	fn, ok := s.Lookup(0x10)
	assert.True(t, ok)
	assert.Equal(t, "foo", fn.Name)
}

func TestStatisticsRecord(t *testing.T) {
	s := NewStatistics()
	s.GetOrCreate(0x10, "foo", KindNormal)

	s.record(0x10, 10*time.Millisecond, 4*time.Millisecond)
	s.record(0x10, 5*time.Millisecond, 8*time.Millisecond) // child capped at elapsed
	s.record(0x99, time.Second, 0)                         // unknown address is ignored

	fs, _ := s.Get(0x10)
	assert.Equal(t, int64(2), fs.NumCalls)
	assert.Equal(t, 15*time.Millisecond, fs.TotalTime)
	assert.Equal(t, 9*time.Millisecond, fs.ChildTime)
	assert.Equal(t, 6*time.Millisecond, fs.SelfTime())
	assert.Equal(t, 7500*time.Microsecond, fs.AverageTime())
	assert.Equal(t, 1, s.Len())
}

func TestStatisticsAllOrderAndRestart(t *testing.T) {
	s := NewStatistics()
	for _, a := range []Address{0x30, 0x10, 0x20} {
		s.GetOrCreate(a, "", KindNormal)
	}

	addresses := func() []Address {
		var out []Address
		for fs := range s.All() {
			out = append(out, fs.Function.Address)
		}
		return out
	}
	assert.Equal(t, []Address{0x30, 0x10, 0x20}, addresses())
	assert.Equal(t, addresses(), addresses())

	// Early termination is honoured.
	for fs := range s.All() {
		assert.Equal(t, Address(0x30), fs.Function.Address)
		break
	}
}

func TestStatisticsClone(t *testing.T) {
	s := NewStatistics()
	s.GetOrCreate(0x10, "foo", KindNormal)
	c := s.clone()

	s.record(0x10, time.Second, 0)
	s.GetOrCreate(0x20, "bar", KindNormal)

	fs, _ := c.Get(0x10)
	assert.Zero(t, fs.NumCalls)
	assert.Equal(t, 1, c.Len())
	assert.Len(t, slices.Collect(c.All()), 1)
}

func TestAverageTimeWithoutCalls(t *testing.T) {
	assert.Zero(t, FunctionStatistics{}.AverageTime())
}

func TestKindRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindNormal, KindPublic, KindNative, KindMain} {
		got, err := ParseKind(k.String())
		assert.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("bogus")
	assert.Error(t, err)
}

func TestStatisticsRestore(t *testing.T) {
	s := NewStatistics()
	s.GetOrCreate(0x10, "foo", KindPublic)

	s.Restore(FunctionStatistics{
		Function:  Function{Address: 0x10, Name: "ignored", Kind: KindNative},
		NumCalls:  4,
		TotalTime: 8 * time.Millisecond,
		ChildTime: 2 * time.Millisecond,
	})
	s.Restore(FunctionStatistics{Function: Function{Address: 0x20, Name: "bar"}, NumCalls: 1})

	foo, _ := s.Get(0x10)
	assert.Equal(t, "foo", foo.Function.Name)
	assert.Equal(t, KindPublic, foo.Function.Kind)
	assert.Equal(t, int64(4), foo.NumCalls)
	assert.Equal(t, 6*time.Millisecond, foo.SelfTime())

	bar, ok := s.Get(0x20)
	assert.True(t, ok)
	assert.Equal(t, int64(1), bar.NumCalls)
	assert.Equal(t, 2, s.Len())
}
