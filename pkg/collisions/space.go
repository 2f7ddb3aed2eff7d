// Package collisions keeps demo bodies inside a walled arena.
package collisions

import (
	"math"

	"github.com/solarlune/resolv"
)

const (
	TagWall = "wall"
	TagBody = "body"

	cellSize = 16
)

// NewArena returns a width by height space enclosed by walls of the given
// thickness. Sizes should be multiples of 16, the cell size.
func NewArena(width, height, wall float64) *resolv.Space {
	space := resolv.NewSpace(int(width), int(height), cellSize, cellSize)
	space.Add(
		resolv.NewObject(0, 0, width, wall, TagWall),
		resolv.NewObject(0, height-wall, width, wall, TagWall),
		resolv.NewObject(0, wall, wall, height-2*wall, TagWall),
		resolv.NewObject(width-wall, wall, wall, height-2*wall, TagWall),
	)
	return space
}

// Move moves obj by dx and then by dy, stopping it flush against the nearest
// wall in the way on each axis. It reports which axes were blocked.
func Move(obj *resolv.Object, dx, dy float64) (blockedX, blockedY bool) {
	if d, ok := contact(obj, dx, 0); ok {
		dx, blockedX = d, true
	}
	obj.Position.X += dx
	obj.Update()

	if d, ok := contact(obj, 0, dy); ok {
		dy, blockedY = d, true
	}
	obj.Position.Y += dy
	obj.Update()
	return blockedX, blockedY
}

// contact returns how far obj can travel along one axis before it touches a
// wall. Exactly one of dx and dy may be non-zero. ok is false when no wall
// is within reach.
func contact(obj *resolv.Object, dx, dy float64) (float64, bool) {
	move := dx + dy
	if move == 0 {
		return 0, false
	}

	// Check shrinks the moved bounds by one unit before mapping them to
	// cells, so check one unit further to see walls under a unit away.
	reach := math.Copysign(1, move)
	var collision *resolv.Collision
	if dx != 0 {
		collision = obj.Check(dx+reach, 0, TagWall)
	} else {
		collision = obj.Check(0, dy+reach, TagWall)
	}
	if collision == nil {
		return 0, false
	}

	nearest, found := math.Abs(move), false
	for _, wall := range collision.Objects {
		c := collision.ContactWithObject(wall)
		d := c.X
		if dx == 0 {
			d = c.Y
		}
		if d*move < 0 {
			// behind us
			continue
		}
		if math.Abs(d) <= nearest {
			nearest, found = math.Abs(d), true
		}
	}
	return math.Copysign(nearest, move), found
}
