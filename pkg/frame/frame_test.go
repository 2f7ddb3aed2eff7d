package frame

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter replicates a single signed integer and diffs it with a one-bit
// changed flag.
type counter struct {
	x       int32
	applied []int32
	lerped  float64
	lerpDt  float64
	cold    bool
}

func (c *counter) CollectState(w *bitstream.Writer) {
	w.WriteSigned(c.x, 32)
}

func (c *counter) ApplyState(r *bitstream.Reader) {
	c.x = r.ReadSigned(32)
	c.applied = append(c.applied, c.x)
}

func (c *counter) ApplyLerpedState(r0, r1 *bitstream.Reader, mix, dt float64) {
	v1 := r1.ReadSigned(32)
	v0 := v1
	c.cold = r0 == nil
	if r0 != nil {
		v0 = r0.ReadSigned(32)
	}
	c.lerped = float64(v0) + (float64(v1)-float64(v0))*mix
	c.lerpDt = dt
}

func (c *counter) CalculateDelta(base, full *bitstream.Reader, out *bitstream.Writer) {
	b := base.ReadSigned(32)
	f := full.ReadSigned(32)
	if b == f {
		out.WriteBool(false)
		return
	}
	out.WriteBool(true)
	out.WriteSigned(f, 32)
}

func (c *counter) AddDelta(base, delta *bitstream.Reader, out *bitstream.Writer) {
	b := base.ReadSigned(32)
	if delta.ReadBool() {
		out.WriteSigned(delta.ReadSigned(32), 32)
		return
	}
	out.WriteSigned(b, 32)
}

// snapshotOnly streams state but cannot diff it.
type snapshotOnly struct{ v uint32 }

func (s *snapshotOnly) CollectState(w *bitstream.Writer) { w.Write(s.v, 12) }
func (s *snapshotOnly) ApplyState(r *bitstream.Reader)   { s.v = r.Read(12) }

// greedy reads more than it was given.
type greedy struct{ counter }

func (g *greedy) ApplyState(r *bitstream.Reader) {
	r.Read(32)
}

// lazy reads less than it was given.
type lazy struct{ counter }

func (l *lazy) AddDelta(base, delta *bitstream.Reader, out *bitstream.Writer) {
	out.WriteSigned(base.ReadSigned(32), 32)
}

// marker takes no part in streaming.
type marker struct{ authority uint8 }

func payloadValue(t *testing.T, f *Frame, id uint32) int32 {
	t.Helper()
	payload, ok := f.Index()[id]
	require.True(t, ok, "scope %d missing", id)
	v := payload.ReadSigned(32)
	require.Equal(t, 0, payload.Remaining())
	return v
}

func requireProtocolPanic(t *testing.T, fn func()) *ProtocolError {
	t.Helper()
	var perr *ProtocolError
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected a panic")
			err, ok := r.(error)
			require.True(t, ok)
			require.True(t, errors.As(err, &perr), "panic %v is not a ProtocolError", err)
		}()
		fn()
	}()
	return perr
}

func TestScenario_singleCounterDelta(t *testing.T) {
	server := scope.NewRegistry()
	entry := &counter{x: 10}
	require.NoError(t, server.Register(5, entry))

	collector := NewCollector(server)
	encoder := NewEncoder(NewEncoderOptions{Registry: server})

	f1 := collector.Collect()
	entry.x = 12
	f2 := collector.Collect()
	delta := encoder.CalculateDelta(f2, f1)

	payload := delta.Index()[5]
	require.NotNil(t, payload)
	assert.True(t, payload.ReadBool(), "scope 5 should be marked as a delta")
	assert.True(t, payload.ReadBool(), "entry should report a change")
	assert.Equal(t, int32(12), payload.ReadSigned(32))

	client := scope.NewRegistry()
	replica := &counter{}
	require.NoError(t, client.Register(5, replica))
	reader := NewReader(client)

	rebuilt, err := reader.AddDelta(f1, delta)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(f2))
	assert.Equal(t, int32(12), payloadValue(t, rebuilt, 5))

	reader.Apply(rebuilt)
	assert.Equal(t, int32(12), replica.x)
}

func TestCollect_layout(t *testing.T) {
	r := scope.NewRegistry()
	require.NoError(t, r.Register(3, &counter{x: -7}, &marker{}))
	require.NoError(t, r.Register(9, &marker{}))
	require.NoError(t, r.Register(1, &counter{x: 1}, &counter{x: 2}))

	f := NewCollector(r).Collect()

	rd := f.Reader()
	assert.Equal(t, uint32(3), rd.Read(ScopeIDBits))
	assert.Equal(t, uint32(32), rd.Read(bitstream.LengthBits))
	assert.Equal(t, int32(-7), rd.ReadSigned(32))
	assert.Equal(t, uint32(9), rd.Read(ScopeIDBits))
	assert.Equal(t, uint32(0), rd.Read(bitstream.LengthBits))
	assert.Equal(t, uint32(1), rd.Read(ScopeIDBits))
	assert.Equal(t, uint32(64), rd.Read(bitstream.LengthBits))
	assert.Equal(t, int32(1), rd.ReadSigned(32))
	assert.Equal(t, int32(2), rd.ReadSigned(32))
	assert.Equal(t, 0, rd.Remaining())

	assert.Equal(t, []uint32{3, 9, 1}, f.ScopeIDs())
}

func TestCollect_emptyRegistry(t *testing.T) {
	f := NewCollector(scope.NewRegistry()).Collect()
	assert.Equal(t, 0, f.Bits())
	assert.Empty(t, f.Sections())
	assert.True(t, f.Equal(Empty()))
}

func TestSections_duplicateScopePanics(t *testing.T) {
	b := NewBuilder()
	b.Add(4, bitstream.NewWriter())
	b.Add(4, bitstream.NewWriter())
	f := b.Frame()

	perr := requireProtocolPanic(t, func() { f.Sections() })
	assert.Equal(t, uint32(4), perr.ScopeID)
}

type world struct {
	registry *scope.Registry
	counters map[uint32][]*counter
}

func newWorld(t *testing.T, ids []uint32, perScope int) *world {
	w := &world{registry: scope.NewRegistry(), counters: make(map[uint32][]*counter)}
	for _, id := range ids {
		entries := make([]scope.Entry, 0, perScope+1)
		for i := 0; i < perScope; i++ {
			c := &counter{}
			w.counters[id] = append(w.counters[id], c)
			entries = append(entries, c)
		}
		entries = append(entries, &marker{})
		require.NoError(t, w.registry.Register(id, entries...))
	}
	return w
}

func TestDelta_inverseLaw(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	ids := []uint32{0, 4, 17, 256, 70000}
	server := newWorld(t, ids, 3)
	client := newWorld(t, ids, 3)

	collector := NewCollector(server.registry)
	encoder := NewEncoder(NewEncoderOptions{Registry: server.registry})
	reader := NewReader(client.registry)

	base := collector.Collect()
	for round := 0; round < 50; round++ {
		for _, cs := range server.counters {
			for _, c := range cs {
				if rnd.Intn(3) == 0 {
					c.x = rnd.Int31() - rnd.Int31()
				}
			}
		}
		full := collector.Collect()
		delta := encoder.CalculateDelta(full, base)

		rebuilt, err := reader.AddDelta(base, delta)
		require.NoError(t, err)
		require.True(t, rebuilt.Equal(full), "round %d", round)

		if rnd.Intn(2) == 0 {
			base = full
		}
	}
}

func TestDelta_unchangedIsSmaller(t *testing.T) {
	server := newWorld(t, []uint32{1, 2}, 4)
	collector := NewCollector(server.registry)
	encoder := NewEncoder(NewEncoderOptions{Registry: server.registry})

	base := collector.Collect()
	full := collector.Collect()
	delta := encoder.CalculateDelta(full, base)

	// Per scope: id + length + is-delta bit + one changed bit per counter.
	assert.Equal(t, 2*(ScopeIDBits+bitstream.LengthBits+1+4), delta.Bits())
	assert.Less(t, delta.Bits(), full.Bits())
}

func TestDelta_newScopePassthrough(t *testing.T) {
	server := newWorld(t, []uint32{1}, 1)
	server.counters[1][0].x = 5
	collector := NewCollector(server.registry)
	encoder := NewEncoder(NewEncoderOptions{Registry: server.registry})
	base := collector.Collect()

	fresh := &counter{x: 99}
	require.NoError(t, server.registry.Register(2, fresh))
	full := collector.Collect()
	delta := encoder.CalculateDelta(full, base)

	index := delta.Index()
	require.Contains(t, index, uint32(2))
	assert.False(t, index[2].ReadBool(), "new scope must be a verbatim copy")
	assert.Equal(t, int32(99), index[2].ReadSigned(32))

	client := newWorld(t, []uint32{1, 2}, 1)
	rebuilt, err := NewReader(client.registry).AddDelta(base, delta)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(full))

	// The verbatim scope does not depend on the base at all.
	unrelated := NewBuilder()
	junk := bitstream.NewWriter()
	junk.Write(0xABC, 12)
	unrelated.Add(2, junk)
	onlyNew := encoder.CalculateDelta(full, Empty())
	rebuiltAlone, err := NewReader(client.registry).AddDelta(unrelated.Frame(), onlyNew)
	require.NoError(t, err)
	assert.Equal(t, int32(99), payloadValue(t, rebuiltAlone, 2))
	assert.Equal(t, int32(5), payloadValue(t, rebuiltAlone, 1))
}

func TestDelta_nilBaseIsAllVerbatim(t *testing.T) {
	server := newWorld(t, []uint32{1, 2, 3}, 2)
	full := NewCollector(server.registry).Collect()
	delta := NewEncoder(NewEncoderOptions{Registry: server.registry}).CalculateDelta(full, nil)

	for _, s := range delta.Sections() {
		assert.False(t, s.Payload.ReadBool())
	}
	client := newWorld(t, []uint32{1, 2, 3}, 2)
	rebuilt, err := NewReader(client.registry).AddDelta(nil, delta)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(full))
}

func TestDelta_skipIdenticalScopes(t *testing.T) {
	ids := []uint32{1, 2, 3}
	server := newWorld(t, ids, 2)
	client := newWorld(t, ids, 2)
	collector := NewCollector(server.registry)
	encoder := NewEncoder(NewEncoderOptions{Registry: server.registry, SkipIdenticalScopes: true})

	base := collector.Collect()
	server.counters[2][1].x = 40
	full := collector.Collect()
	delta := encoder.CalculateDelta(full, base)

	assert.Equal(t, []uint32{2}, delta.ScopeIDs())

	rebuilt, err := NewReader(client.registry).AddDelta(base, delta)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(full))
}

func TestDelta_skippedScopesKeepTheirPosition(t *testing.T) {
	ids := []uint32{1, 2, 3, 4}
	server := newWorld(t, ids, 1)
	client := newWorld(t, append(ids, 9), 1)
	collector := NewCollector(server.registry)
	encoder := NewEncoder(NewEncoderOptions{Registry: server.registry, SkipIdenticalScopes: true})

	base := collector.Collect()
	server.counters[1][0].x = 5
	server.counters[4][0].x = 6
	fresh := &counter{x: 7}
	require.NoError(t, server.registry.Register(9, fresh))
	full := collector.Collect()
	delta := encoder.CalculateDelta(full, base)
	assert.Equal(t, []uint32{1, 4, 9}, delta.ScopeIDs())

	rebuilt, err := NewReader(client.registry).AddDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3, 4, 9}, rebuilt.ScopeIDs())
	assert.True(t, rebuilt.Equal(full))
}

func TestDelta_entryWithoutDiffIsVerbatim(t *testing.T) {
	server := scope.NewRegistry()
	snap := &snapshotOnly{v: 100}
	require.NoError(t, server.Register(8, &counter{x: 3}, snap))
	collector := NewCollector(server)
	base := collector.Collect()
	snap.v = 101
	full := collector.Collect()

	delta := NewEncoder(NewEncoderOptions{Registry: server}).CalculateDelta(full, base)
	payload := delta.Index()[8]
	assert.False(t, payload.ReadBool())

	client := scope.NewRegistry()
	require.NoError(t, client.Register(8, &counter{}, &snapshotOnly{}))
	rebuilt, err := NewReader(client).AddDelta(base, delta)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(full))
}

func TestAddDelta_unknownScope(t *testing.T) {
	server := newWorld(t, []uint32{1, 2}, 1)
	collector := NewCollector(server.registry)
	encoder := NewEncoder(NewEncoderOptions{Registry: server.registry})
	base := collector.Collect()
	server.counters[2][0].x = 8
	full := collector.Collect()
	delta := encoder.CalculateDelta(full, base)

	client := newWorld(t, []uint32{1}, 1)
	var rebuilt *Frame
	var err error
	assert.NotPanics(t, func() { rebuilt, err = NewReader(client.registry).AddDelta(base, delta) })
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, []uint32{1}, rebuilt.ScopeIDs())

	// once registered, the same delta rebuilds against a base that kept the
	// scope verbatim
	require.NoError(t, client.registry.Register(2, &counter{}, &marker{}))
	rebuilt, err = NewReader(client.registry).AddDelta(base, delta)
	require.NoError(t, err)
	assert.True(t, rebuilt.Equal(full))
}

func TestAddDelta_baseWithoutScope(t *testing.T) {
	server := newWorld(t, []uint32{6}, 1)
	collector := NewCollector(server.registry)
	base := collector.Collect()
	full := collector.Collect()
	delta := NewEncoder(NewEncoderOptions{Registry: server.registry}).CalculateDelta(full, base)

	client := newWorld(t, []uint32{6}, 1)
	rebuilt, err := NewReader(client.registry).AddDelta(Empty(), delta)
	assert.ErrorIs(t, err, ErrBaseMismatch)
	assert.Nil(t, rebuilt)
}

func TestAddDelta_mismatchedConsumptionPanics(t *testing.T) {
	server := newWorld(t, []uint32{2}, 1)
	collector := NewCollector(server.registry)
	base := collector.Collect()
	server.counters[2][0].x = 77
	full := collector.Collect()
	delta := NewEncoder(NewEncoderOptions{Registry: server.registry}).CalculateDelta(full, base)

	client := scope.NewRegistry()
	require.NoError(t, client.Register(2, &lazy{}))
	requireProtocolPanic(t, func() { _, _ = NewReader(client).AddDelta(base, delta) })
}

func TestApply_cold(t *testing.T) {
	server := newWorld(t, []uint32{1, 2}, 2)
	server.counters[1][0].x = 11
	server.counters[1][1].x = 12
	server.counters[2][0].x = 21
	f := NewCollector(server.registry).Collect()

	client := newWorld(t, []uint32{1, 2}, 2)
	NewReader(client.registry).Apply(f)

	assert.Equal(t, []int32{11}, client.counters[1][0].applied)
	assert.Equal(t, []int32{12}, client.counters[1][1].applied)
	assert.Equal(t, []int32{21}, client.counters[2][0].applied)
	assert.Equal(t, []int32{0}, client.counters[2][1].applied)
}

func TestApply_unknownScopeIsSkipped(t *testing.T) {
	server := newWorld(t, []uint32{1, 2}, 1)
	server.counters[2][0].x = 4
	f := NewCollector(server.registry).Collect()

	client := newWorld(t, []uint32{2}, 1)
	assert.NotPanics(t, func() { NewReader(client.registry).Apply(f) })
	assert.Equal(t, []int32{4}, client.counters[2][0].applied)
}

func TestApply_overreadPanics(t *testing.T) {
	server := newWorld(t, []uint32{1}, 1)
	f := NewCollector(server.registry).Collect()

	client := scope.NewRegistry()
	require.NoError(t, client.Register(1, &greedy{}, &greedy{}))
	assert.Panics(t, func() { NewReader(client).Apply(f) })
}

type lerpOnly struct {
	value float64
	cold  bool
}

func (l *lerpOnly) ApplyLerpedState(r0, r1 *bitstream.Reader, mix, dt float64) {
	v1 := float64(r1.ReadSigned(32))
	l.cold = r0 == nil
	if r0 == nil {
		l.value = v1
		return
	}
	v0 := float64(r0.ReadSigned(32))
	l.value = v0 + (v1-v0)*mix
}

func TestApplyLerped(t *testing.T) {
	server := newWorld(t, []uint32{1, 2}, 1)
	collector := NewCollector(server.registry)
	server.counters[1][0].x = 100
	prev := collector.Collect()

	server.counters[1][0].x = 200
	require.NoError(t, server.registry.Register(3, &counter{x: 7}))
	next := collector.Collect()

	client := newWorld(t, []uint32{1, 2}, 1)
	fresh := &lerpOnly{}
	require.NoError(t, client.registry.Register(3, fresh))

	NewReader(client.registry).ApplyLerped(prev, next, 0.25, 0.05)

	assert.InDelta(t, 125.0, client.counters[1][0].lerped, 1e-9)
	assert.False(t, client.counters[1][0].cold)
	assert.Equal(t, 0.05, client.counters[1][0].lerpDt)
	assert.True(t, fresh.cold, "scope missing from prev frame is applied cold")
	assert.Equal(t, 7.0, fresh.value)
}

func TestApplyLerped_nilPrevIsCold(t *testing.T) {
	server := newWorld(t, []uint32{1}, 1)
	server.counters[1][0].x = 9
	next := NewCollector(server.registry).Collect()

	client := newWorld(t, []uint32{1}, 1)
	NewReader(client.registry).ApplyLerped(nil, next, 0.5, 0.1)
	assert.Equal(t, []int32{9}, client.counters[1][0].applied)
}

func TestApplyLerped_entryWithoutBlendFallsBackToCold(t *testing.T) {
	server := scope.NewRegistry()
	c := &counter{x: 1}
	snap := &snapshotOnly{v: 5}
	require.NoError(t, server.Register(4, c, snap))
	collector := NewCollector(server)
	prev := collector.Collect()
	c.x = 3
	snap.v = 6
	next := collector.Collect()

	client := scope.NewRegistry()
	cc := &counter{}
	cs := &snapshotOnly{}
	require.NoError(t, client.Register(4, cc, cs))
	NewReader(client).ApplyLerped(prev, next, 0.5, 0.1)

	assert.Equal(t, []int32{3}, cc.applied)
	assert.Equal(t, uint32(6), cs.v)
}
