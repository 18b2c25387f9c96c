// Package bounce models a ball moving inside a rectangular arena with
// deterministic wall reflection. Speeds after each reflection come from a
// fixed table rather than an entropy source, so runs are repeatable.
package bounce

import (
	"image"

	"github.com/pkg/errors"
)

// ErrInvalidArena is returned when the ball cannot fit the arena.
var ErrInvalidArena = errors.New("bounce: invalid arena")

// DefaultTable is the perturbation table used by New.
var DefaultTable = []int{6, 2, 3, 5, 8, 3, 2, 4, 3, 8, 2}

// DefaultVector is the initial velocity used by New.
var DefaultVector = image.Pt(2, 3)

// Bounce is the ball's state. Loc always stays within Bounds inset by
// Radius once Update has run; Cursor always indexes Table.
type Bounce struct {
	Loc    image.Point
	Vector image.Point
	Radius int
	Bounds image.Rectangle
	Table  []int
	Cursor int

	reflections int
}

// New creates a ball at start with the default velocity and table.
func New(radius int, bounds image.Rectangle, start image.Point) (*Bounce, error) {
	return NewWithTable(radius, bounds, start, DefaultVector, DefaultTable)
}

// NewWithTable creates a ball with an explicit velocity and table.
func NewWithTable(radius int, bounds image.Rectangle, start, vector image.Point, table []int) (*Bounce, error) {
	if radius < 0 {
		return nil, errors.Wrapf(ErrInvalidArena, "negative radius %d", radius)
	}
	if len(table) == 0 {
		return nil, errors.Wrap(ErrInvalidArena, "empty perturbation table")
	}
	for _, v := range table {
		if v <= 0 {
			return nil, errors.Wrapf(ErrInvalidArena, "table magnitude %d", v)
		}
	}
	if bounds.Dx() <= 2*radius || bounds.Dy() <= 2*radius {
		return nil, errors.Wrapf(ErrInvalidArena, "%v too small for radius %d", bounds, radius)
	}

	b := &Bounce{
		Loc:    start,
		Vector: vector,
		Radius: radius,
		Bounds: bounds,
		Table:  append([]int(nil), table...),
	}
	if !b.Contains(start) {
		return nil, errors.Wrapf(ErrInvalidArena, "start %v outside %v", start, b.Inset())
	}
	return b, nil
}

// Inset returns the arena narrowed by the radius: the region the centre
// may occupy.
func (b *Bounce) Inset() image.Rectangle {
	return b.Bounds.Inset(b.Radius)
}

// Contains reports whether p is a legal centre: inside the inset arena,
// walls included.
func (b *Bounce) Contains(p image.Point) bool {
	in := b.Inset()
	return p.X >= in.Min.X && p.X <= in.Max.X && p.Y >= in.Min.Y && p.Y <= in.Max.Y
}

// Reflections returns the number of reflection events so far.
func (b *Bounce) Reflections() int {
	return b.reflections
}

// Update advances the ball by one step. Touching a wall counts as
// crossing it. Every crossed wall turns its velocity component inward with
// the magnitude at Cursor and clamps the position to that wall; the cursor
// then advances once per event, however many walls were hit.
func (b *Bounce) Update() *Bounce {
	x := b.Loc.X + b.Vector.X
	y := b.Loc.Y + b.Vector.Y

	r := b.Radius
	left, top := b.Bounds.Min.X+r, b.Bounds.Min.Y+r
	right, bottom := b.Bounds.Max.X-r, b.Bounds.Max.Y-r

	if x >= right || x <= left || y >= bottom || y <= top {
		mag := b.Table[b.Cursor]
		if x >= right {
			b.Vector.X = -mag
			x = right
		}
		if x <= left {
			b.Vector.X = mag
			x = left
		}
		if y >= bottom {
			b.Vector.Y = -mag
			y = bottom
		}
		if y <= top {
			b.Vector.Y = mag
			y = top
		}
		b.Cursor = (b.Cursor + 1) % len(b.Table)
		b.reflections++
	}

	b.Loc = image.Pt(x, y)
	return b
}
