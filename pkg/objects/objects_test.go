package objects

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/frame"
	"github.com/cbodonnell/tickstream/pkg/kinematic"
	"github.com/cbodonnell/tickstream/pkg/quantize"
	"github.com/cbodonnell/tickstream/pkg/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCodec() *BodyCodec {
	return &BodyCodec{
		Position:     quantize.MustPrecision(8, 14, 20, 1024),
		Velocity:     quantize.MustPrecision(6, 10, 16, 64),
		RotationBits: 12,
	}
}

func collect(e scope.StateCollector) *bitstream.Writer {
	w := bitstream.NewWriter()
	e.CollectState(w)
	return w
}

func assertVectorNear(t *testing.T, want, got kinematic.Vector, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol)
	assert.InDelta(t, want.Y, got.Y, tol)
	assert.InDelta(t, want.Z, got.Z, tol)
}

func TestBody_roundTrip(t *testing.T) {
	codec := testCodec()
	src := NewBody(codec)
	src.Position = kinematic.Vector{X: 12.5, Y: -300.25, Z: 1000}
	src.Velocity = kinematic.Vector{X: 3, Y: 0, Z: -10}
	src.Rotation = kinematic.FromAxisAngle(kinematic.Vector{Y: 1}, 1.2)

	w := collect(src)
	dst := NewBody(codec)
	r := w.Reader()
	dst.ApplyState(r)
	assert.Equal(t, 0, r.Remaining())

	assertVectorNear(t, src.Position, dst.Position, codec.Position.Step())
	assertVectorNear(t, src.Velocity, dst.Velocity, codec.Velocity.Step())
	assert.InDelta(t, 1.0, math.Abs(src.Rotation.Dot(dst.Rotation)), 1e-4)
}

func TestBody_restingIsSmall(t *testing.T) {
	codec := testCodec()
	b := NewBody(codec)
	// Six small-tier axes plus the rotation.
	want := 3*(1+8) + 3*(1+6) + quantize.RotationBits(12)
	assert.Equal(t, want, collect(b).Bits())
}

func delta(t *testing.T, e *Body, base, full *bitstream.Writer) (*bitstream.Writer, *bitstream.Writer) {
	t.Helper()
	d := bitstream.NewWriter()
	br, fr := base.Reader(), full.Reader()
	e.CalculateDelta(br, fr, d)
	require.Equal(t, 0, br.Remaining())
	require.Equal(t, 0, fr.Remaining())

	out := bitstream.NewWriter()
	br, dr := base.Reader(), d.Reader()
	e.AddDelta(br, dr, out)
	require.Equal(t, 0, br.Remaining())
	require.Equal(t, 0, dr.Remaining())
	return d, out
}

func TestBody_delta(t *testing.T) {
	codec := testCodec()
	b := NewBody(codec)
	b.Position = kinematic.Vector{X: 100, Y: 5, Z: -20}
	b.Velocity = kinematic.Vector{X: 4}
	base := collect(b)

	t.Run("unchanged", func(t *testing.T) {
		d, out := delta(t, b, base, collect(b))
		assert.Equal(t, 3, d.Bits())
		assert.True(t, bitstream.Equal(base.Reader(), out.Reader()))
	})

	t.Run("small move", func(t *testing.T) {
		b.Step(0.05)
		full := collect(b)
		d, out := delta(t, b, base, full)
		assert.True(t, bitstream.Equal(full.Reader(), out.Reader()))
		assert.Less(t, d.Bits(), full.Bits())
	})

	t.Run("teleport across the range", func(t *testing.T) {
		b.Position = kinematic.Vector{X: -1000, Y: 1000, Z: 0}
		b.Rotation = kinematic.FromAxisAngle(kinematic.Vector{X: 1}, 2)
		full := collect(b)
		_, out := delta(t, b, base, full)
		assert.True(t, bitstream.Equal(full.Reader(), out.Reader()))
	})
}

func TestBody_lerp(t *testing.T) {
	codec := testCodec()
	b := NewBody(codec)
	b.Position = kinematic.Vector{X: 0}
	b.Velocity = kinematic.Vector{X: 10}
	s0 := collect(b)
	b.Position = kinematic.Vector{X: 10}
	b.Rotation = kinematic.FromAxisAngle(kinematic.Vector{Z: 1}, math.Pi/2)
	s1 := collect(b)

	dst := NewBody(codec)
	dst.ApplyLerpedState(s0.Reader(), s1.Reader(), 0.5, 1)
	assert.InDelta(t, 5, dst.Position.X, 2*codec.Position.Step())
	half := kinematic.FromAxisAngle(kinematic.Vector{Z: 1}, math.Pi/4)
	assert.InDelta(t, 1.0, math.Abs(half.Dot(dst.Rotation)), 1e-3)

	dst.ApplyLerpedState(s0.Reader(), s1.Reader(), 1.5, 0.1)
	assert.InDelta(t, 10.5, dst.Position.X, 2*codec.Position.Step())

	dst.ApplyLerpedState(s0.Reader(), s1.Reader(), 10, 0.1)
	assert.InDelta(t, 10+10*0.1*MaxExtrapolation, dst.Position.X, 2*codec.Position.Step())

	dst.ApplyLerpedState(nil, s1.Reader(), 0.5, 0.1)
	assert.InDelta(t, 10, dst.Position.X, 2*codec.Position.Step())
}

func TestCounter_delta(t *testing.T) {
	c := &Counter{X: 10}
	base := collect(c)
	c.X = 12
	full := collect(c)

	d := bitstream.NewWriter()
	c.CalculateDelta(base.Reader(), full.Reader(), d)
	assert.Equal(t, 33, d.Bits())

	out := bitstream.NewWriter()
	replica := &Counter{}
	replica.AddDelta(base.Reader(), d.Reader(), out)
	replica.ApplyState(out.Reader())
	assert.Equal(t, int32(12), replica.X)

	same := bitstream.NewWriter()
	c.CalculateDelta(full.Reader(), full.Reader(), same)
	assert.Equal(t, 1, same.Bits())
}

func TestAuthorityMarker_notStreamed(t *testing.T) {
	assert.False(t, scope.Bind(&AuthorityMarker{Owner: 1}).Streams())
}

// TestWorld_replication runs a small world through the full collect, delta
// and rebuild cycle and checks the client converges on the server.
func TestWorld_replication(t *testing.T) {
	codec := testCodec()
	rnd := rand.New(rand.NewSource(7))

	server := scope.NewRegistry()
	client := scope.NewRegistry()
	bodies := make([]*Body, 4)
	replicas := make([]*Body, 4)
	for i := range bodies {
		bodies[i] = NewBody(codec)
		bodies[i].Velocity = kinematic.Vector{X: rnd.Float64()*20 - 10, Y: rnd.Float64()*20 - 10}
		replicas[i] = NewBody(codec)
		require.NoError(t, server.Register(uint32(i), bodies[i], &AuthorityMarker{}))
		require.NoError(t, client.Register(uint32(i), replicas[i]))
	}
	tick := &Counter{}
	replicaTick := &Counter{}
	require.NoError(t, server.Register(100, tick))
	require.NoError(t, client.Register(100, replicaTick))

	collector := frame.NewCollector(server)
	encoder := frame.NewEncoder(frame.NewEncoderOptions{Registry: server, SkipIdenticalScopes: true})
	reader := frame.NewReader(client)

	var base *frame.Frame
	clientBase := frame.Empty()
	for step := 0; step < 40; step++ {
		tick.X++
		for _, b := range bodies {
			b.Step(0.05)
			if rnd.Intn(10) == 0 {
				b.Velocity = b.Velocity.Scale(-1)
			}
		}
		full := collector.Collect()
		d := encoder.CalculateDelta(full, base)
		rebuilt, err := reader.AddDelta(clientBase, d)
		require.NoError(t, err)
		require.True(t, rebuilt.Equal(full), "step %d", step)
		reader.Apply(rebuilt)

		if step%3 == 0 {
			base = full
			clientBase = rebuilt
		}
	}

	assert.Equal(t, tick.X, replicaTick.X)
	for i := range bodies {
		assertVectorNear(t, bodies[i].Position, replicas[i].Position, codec.Position.Step())
	}
}

func TestOrbits(t *testing.T) {
	o := NewOrbits(testCodec(), 4, 10, 2)
	assertVectorNear(t, kinematic.Vector{X: 10}, o.Bodies[0].Position, 1e-9)
	assertVectorNear(t, kinematic.Vector{Y: 10}, o.Bodies[1].Position, 1e-9)

	o.Update(0.5)
	assert.Equal(t, int32(1), o.Ticks.X)
	assertVectorNear(t, kinematic.Vector{Y: 10}, o.Bodies[0].Position, 1e-9)
	assertVectorNear(t, kinematic.Vector{X: -10 * math.Pi}, o.Bodies[0].Velocity, 1e-9)

	o.Update(1.5)
	assertVectorNear(t, kinematic.Vector{X: 10}, o.Bodies[0].Position, 1e-9)

	r := scope.NewRegistry()
	require.NoError(t, o.Register(r, 0))
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, r.IDs())
	assert.Error(t, o.Register(r, 0))
}

func TestArena_staysInside(t *testing.T) {
	a := NewArena(testCodec(), 16, 256, 150, rand.New(rand.NewSource(3)))
	r := scope.NewRegistry()
	require.NoError(t, a.Register(r, 0))
	assert.Equal(t, 17, r.Len())

	start := make([]kinematic.Vector, len(a.Bodies))
	for i, b := range a.Bodies {
		start[i] = b.Position
		assert.LessOrEqual(t, b.Velocity.Length(), 64.0, "body %d is faster than the velocity range", i)
	}

	for step := 0; step < 400; step++ {
		a.Update(0.05)
		for i, b := range a.Bodies {
			assert.GreaterOrEqual(t, b.Position.X, 16.0, "body %d step %d", i, step)
			assert.GreaterOrEqual(t, b.Position.Y, 16.0, "body %d step %d", i, step)
			assert.LessOrEqual(t, b.Position.X, 256.0-16-ArenaBodySize, "body %d step %d", i, step)
			assert.LessOrEqual(t, b.Position.Y, 256.0-16-ArenaBodySize, "body %d step %d", i, step)
		}
	}
	assert.Equal(t, int32(400), a.Ticks.X)

	moved := 0
	for i, b := range a.Bodies {
		if b.Position.Sub(start[i]).Length() > 1 {
			moved++
		}
	}
	assert.Positive(t, moved)
}
