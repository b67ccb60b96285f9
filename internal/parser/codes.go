package parser

import "github.com/beatmapar/loader/pkg/core"

// Integer codes of the chart format. Each type has an explicit table of
// accepted values; anything else is rejected rather than cast.

// NoteType is the _type of a note: 0 red, 1 blue, 3 bomb.
type NoteType int64

const (
	NoteTypeRed  NoteType = 0
	NoteTypeBlue NoteType = 1
	NoteTypeBomb NoteType = 3
)

// CutDirection is the _cutDirection of a note, 0 through 8.
type CutDirection int64

const (
	CutUp        CutDirection = 0
	CutDown      CutDirection = 1
	CutLeft      CutDirection = 2
	CutRight     CutDirection = 3
	CutUpLeft    CutDirection = 4
	CutUpRight   CutDirection = 5
	CutDownLeft  CutDirection = 6
	CutDownRight CutDirection = 7
	CutAny       CutDirection = 8
)

// LineIndex is a grid column, 0 through 3.
type LineIndex int64

// LineLayer is a grid row, 0 through 2.
type LineLayer int64

// ObstacleType is the _type of an obstacle: 0 full height wall, 1 crouch wall.
type ObstacleType int64

const (
	ObstacleVertical   ObstacleType = 0
	ObstacleHorizontal ObstacleType = 1
)

var (
	noteTypes = map[int64]NoteType{
		0: NoteTypeRed,
		1: NoteTypeBlue,
		3: NoteTypeBomb,
	}
	cutDirections = map[int64]CutDirection{
		0: CutUp, 1: CutDown, 2: CutLeft, 3: CutRight,
		4: CutUpLeft, 5: CutUpRight, 6: CutDownLeft, 7: CutDownRight,
		8: CutAny,
	}
	lineIndexes = map[int64]LineIndex{0: 0, 1: 1, 2: 2, 3: 3}
	lineLayers  = map[int64]LineLayer{0: 0, 1: 1, 2: 2}

	obstacleTypes = map[int64]ObstacleType{
		0: ObstacleVertical,
		1: ObstacleHorizontal,
	}
	difficultyRanks = map[int64]core.DifficultyRank{
		1: core.RankEasy,
		3: core.RankNormal,
		5: core.RankHard,
		7: core.RankExpert,
		9: core.RankExpertPlus,
	}
)

// lookupCode resolves code through table, reporting UnknownCode when absent.
func lookupCode[T any](table map[int64]T, field string, code int64, index int) (T, error) {
	v, ok := table[code]
	if !ok {
		var zero T
		return zero, unknownCode(field, code, index)
	}
	return v, nil
}
