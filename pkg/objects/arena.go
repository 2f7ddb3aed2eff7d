package objects

import (
	"math"
	"math/rand"

	"github.com/cbodonnell/tickstream/pkg/collisions"
	"github.com/cbodonnell/tickstream/pkg/kinematic"
	"github.com/cbodonnell/tickstream/pkg/scope"
	"github.com/solarlune/resolv"
)

const (
	// ArenaBodySize is the side of the square each arena body occupies.
	ArenaBodySize = 8
	arenaWall     = 16
)

// Arena is a demo world of bodies bouncing around a walled box. Bodies do
// not collide with each other.
type Arena struct {
	Bodies []*Body
	Ticks  *Counter

	space  *resolv.Space
	shapes []*resolv.Object
	spin   []float64
	angle  []float64
}

// NewArena scatters count bodies with random velocities up to maxSpeed in a
// size by size arena. size should be a multiple of 16. maxSpeed is capped at
// the codec's velocity range so velocities survive quantization.
func NewArena(codec *BodyCodec, count int, size, maxSpeed float64, rnd *rand.Rand) *Arena {
	maxSpeed = math.Min(maxSpeed, codec.Velocity.Range())
	a := &Arena{
		Bodies: make([]*Body, count),
		Ticks:  &Counter{},
		space:  collisions.NewArena(size, size, arenaWall),
		shapes: make([]*resolv.Object, count),
		spin:   make([]float64, count),
		angle:  make([]float64, count),
	}
	inner := size - 2*arenaWall - ArenaBodySize
	for i := range a.Bodies {
		x := arenaWall + rnd.Float64()*inner
		y := arenaWall + rnd.Float64()*inner
		a.shapes[i] = resolv.NewObject(x, y, ArenaBodySize, ArenaBodySize, collisions.TagBody)
		a.space.Add(a.shapes[i])

		heading := rnd.Float64() * 2 * math.Pi
		speed := maxSpeed * (0.25 + 0.75*rnd.Float64())
		b := NewBody(codec)
		b.Velocity = kinematic.Vector{X: speed * math.Cos(heading), Y: speed * math.Sin(heading)}
		a.Bodies[i] = b
		a.spin[i] = rnd.Float64()*4 - 2
	}
	a.place()
	return a
}

// Register adds each body under IDs 1..count and the counter after them.
func (a *Arena) Register(r *scope.Registry, owner uint32) error {
	return registerWorld(r, a.Bodies, a.Ticks, owner)
}

// Update advances the world by dt seconds. A body blocked by a wall reverses
// along that axis.
func (a *Arena) Update(dt float64) {
	for i, b := range a.Bodies {
		blockedX, blockedY := collisions.Move(a.shapes[i], b.Velocity.X*dt, b.Velocity.Y*dt)
		if blockedX {
			b.Velocity.X = -b.Velocity.X
		}
		if blockedY {
			b.Velocity.Y = -b.Velocity.Y
		}
		a.angle[i] = math.Mod(a.angle[i]+a.spin[i]*dt, 2*math.Pi)
	}
	a.Ticks.X++
	a.place()
}

func (a *Arena) place() {
	for i, b := range a.Bodies {
		b.Position = kinematic.Vector{X: a.shapes[i].Position.X, Y: a.shapes[i].Position.Y}
		b.Rotation = kinematic.FromAxisAngle(orbitAxis, a.angle[i])
	}
}
