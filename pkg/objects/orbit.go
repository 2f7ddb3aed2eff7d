package objects

import (
	"math"

	"github.com/cbodonnell/tickstream/pkg/kinematic"
	"github.com/cbodonnell/tickstream/pkg/scope"
)

var orbitAxis = kinematic.Vector{Z: 1}

// Orbits is the demo world: bodies spaced evenly on a circle around the
// origin, each spinning to face along its path, plus a tick counter.
type Orbits struct {
	Bodies []*Body
	Ticks  *Counter

	radius       float64
	angularSpeed float64
	angle        float64
}

// NewOrbits places count bodies on a circle of radius that complete a lap
// every period seconds.
func NewOrbits(codec *BodyCodec, count int, radius, period float64) *Orbits {
	o := &Orbits{
		Bodies:       make([]*Body, count),
		Ticks:        &Counter{},
		radius:       radius,
		angularSpeed: 2 * math.Pi / period,
	}
	for i := range o.Bodies {
		o.Bodies[i] = NewBody(codec)
	}
	o.place()
	return o
}

// Register adds each body under IDs 1..count and the counter after them.
// Bodies carry an AuthorityMarker naming owner.
func (o *Orbits) Register(r *scope.Registry, owner uint32) error {
	return registerWorld(r, o.Bodies, o.Ticks, owner)
}

func registerWorld(r *scope.Registry, bodies []*Body, ticks *Counter, owner uint32) error {
	for i, b := range bodies {
		if err := r.Register(uint32(i+1), b, &AuthorityMarker{Owner: owner}); err != nil {
			return err
		}
	}
	return r.Register(uint32(len(bodies)+1), ticks)
}

// Update advances the world by dt seconds.
func (o *Orbits) Update(dt float64) {
	o.angle = math.Mod(o.angle+o.angularSpeed*dt, 2*math.Pi)
	o.Ticks.X++
	o.place()
}

func (o *Orbits) place() {
	for i, b := range o.Bodies {
		a := o.angle + 2*math.Pi*float64(i)/float64(len(o.Bodies))
		sin, cos := math.Sincos(a)
		b.Position = kinematic.Vector{X: o.radius * cos, Y: o.radius * sin}
		b.Velocity = kinematic.Vector{X: -o.radius * o.angularSpeed * sin, Y: o.radius * o.angularSpeed * cos}
		b.Rotation = kinematic.FromAxisAngle(orbitAxis, a)
	}
}
