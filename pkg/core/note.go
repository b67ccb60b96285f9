// pkg/core/note.go
package core

import "fmt"

// Column is a horizontal grid lane, left to right.
type Column uint8

const (
	ColumnLeftmost Column = iota
	ColumnLeft
	ColumnRight
	ColumnRightmost
)

func (c Column) String() string {
	switch c {
	case ColumnLeftmost:
		return "leftmost"
	case ColumnLeft:
		return "left"
	case ColumnRight:
		return "right"
	case ColumnRightmost:
		return "rightmost"
	default:
		return fmt.Sprintf("Column(%d)", uint8(c))
	}
}

// Row is a vertical grid layer, bottom to top.
type Row uint8

const (
	RowBottom Row = iota
	RowMiddle
	RowTop
)

func (r Row) String() string {
	switch r {
	case RowBottom:
		return "bottom"
	case RowMiddle:
		return "middle"
	case RowTop:
		return "top"
	default:
		return fmt.Sprintf("Row(%d)", uint8(r))
	}
}

// Coordinates locates a note on the 4x3 grid.
type Coordinates struct {
	Row    Row
	Column Column
}

// Direction is the cut direction of a block.
type Direction uint8

const (
	DirectionBottomToTop Direction = iota
	DirectionTopToBottom
	DirectionRightToLeft
	DirectionLeftToRight
	DirectionBottomRightToTopLeft
	DirectionBottomLeftToTopRight
	DirectionTopRightToBottomLeft
	DirectionTopLeftToBottomRight
	DirectionAny
)

var directionNames = [...]string{
	DirectionBottomToTop:          "bottomToTop",
	DirectionTopToBottom:          "topToBottom",
	DirectionRightToLeft:          "rightToLeft",
	DirectionLeftToRight:          "leftToRight",
	DirectionBottomRightToTopLeft: "bottomRightToTopLeft",
	DirectionBottomLeftToTopRight: "bottomLeftToTopRight",
	DirectionTopRightToBottomLeft: "topRightToBottomLeft",
	DirectionTopLeftToBottomRight: "topLeftToBottomRight",
	DirectionAny:                  "any",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// Angle returns the rotation of the arrow in degrees, 0 pointing down.
// DirectionAny has no arrow and returns 0.
func (d Direction) Angle() float32 {
	switch d {
	case DirectionBottomToTop:
		return 180
	case DirectionTopToBottom:
		return 0
	case DirectionRightToLeft:
		return -90
	case DirectionLeftToRight:
		return 90
	case DirectionBottomRightToTopLeft:
		return -135
	case DirectionBottomLeftToTopRight:
		return 135
	case DirectionTopRightToBottomLeft:
		return -45
	case DirectionTopLeftToBottomRight:
		return 45
	default:
		return 0
	}
}

// NoteKind discriminates the Note union.
type NoteKind uint8

const (
	NoteBomb NoteKind = iota
	NoteRedBlock
	NoteBlueBlock
)

func (k NoteKind) String() string {
	switch k {
	case NoteBomb:
		return "bomb"
	case NoteRedBlock:
		return "red"
	case NoteBlueBlock:
		return "blue"
	default:
		return fmt.Sprintf("NoteKind(%d)", uint8(k))
	}
}

// Note is a bomb or a colored block with a cut direction.
// Build one with Bomb, RedBlock or BlueBlock; the direction of a bomb is meaningless.
type Note struct {
	kind      NoteKind
	direction Direction
}

// Bomb returns a bomb note.
func Bomb() Note { return Note{kind: NoteBomb} }

// RedBlock returns a red (left hand) block cut in direction d.
func RedBlock(d Direction) Note { return Note{kind: NoteRedBlock, direction: d} }

// BlueBlock returns a blue (right hand) block cut in direction d.
func BlueBlock(d Direction) Note { return Note{kind: NoteBlueBlock, direction: d} }

// Kind reports which variant the note is.
func (n Note) Kind() NoteKind { return n.kind }

// Direction returns the cut direction and false for bombs.
func (n Note) Direction() (Direction, bool) {
	if n.kind == NoteBomb {
		return 0, false
	}
	return n.direction, true
}

// IsBomb reports whether the note is a bomb.
func (n Note) IsBomb() bool { return n.kind == NoteBomb }

func (n Note) String() string {
	if n.kind == NoteBomb {
		return n.kind.String()
	}
	return n.kind.String() + "(" + n.direction.String() + ")"
}

// NoteEvent is a note placed at an absolute song time in seconds.
type NoteEvent struct {
	Time        float64
	Note        Note
	Coordinates Coordinates
}

// Contains reports whether the event lies within the closed window [lo, hi].
func (e NoteEvent) Contains(lo, hi float64) bool {
	return lo <= e.Time && e.Time <= hi
}

// Orientation of an obstacle.
type Orientation uint8

const (
	OrientationVertical Orientation = iota
	OrientationHorizontal
)

func (o Orientation) String() string {
	switch o {
	case OrientationVertical:
		return "vertical"
	case OrientationHorizontal:
		return "horizontal"
	default:
		return fmt.Sprintf("Orientation(%d)", uint8(o))
	}
}

// ObstacleEvent is a wall starting at Time seconds and lasting Duration seconds.
type ObstacleEvent struct {
	Time        float64
	Duration    float64
	Column      Column
	Orientation Orientation
	Width       int
}

// End returns the time the obstacle stops occupying the track.
// Negative durations count as zero.
func (e ObstacleEvent) End() float64 {
	if e.Duration > 0 {
		return e.Time + e.Duration
	}
	return e.Time
}

// Overlaps reports whether [Time, End()] touches the closed window [lo, hi].
func (e ObstacleEvent) Overlaps(lo, hi float64) bool {
	return e.Time <= hi && e.End() >= lo
}
