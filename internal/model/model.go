package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists every table of the catalog schema, in migration order.
var DatabaseModels = []any{
	&Song{},
}

// Song is the catalog row of one bundle archive. It holds what a song picker
// needs and never the decoded charts.
type Song struct {
	gorm.Model
	Source          string         `json:"source" gorm:"size:1024;not null;uniqueIndex:idx_source"`
	ModTimeUnix     int64          `json:"modTime"`
	Size            int64          `json:"size"`
	SongName        string         `json:"songName" gorm:"size:255;index:idx_song_name"`
	SongSubName     string         `json:"songSubName" gorm:"size:255"`
	SongAuthorName  string         `json:"songAuthorName" gorm:"size:255;index:idx_song_author"`
	LevelAuthorName string         `json:"levelAuthorName" gorm:"size:255;index:idx_level_author"`
	BeatsPerMinute  uint           `json:"beatsPerMinute"`
	SongTimeOffset  float64        `json:"songTimeOffset"`
	CoverWidth      int            `json:"coverWidth"`
	CoverHeight     int            `json:"coverHeight"`
	Difficulties    datatypes.JSON `json:"difficulties"`
}

func (*Song) TableName() string {
	return "songs"
}

// DifficultyEntry is one element of Song.Difficulties.
type DifficultyEntry struct {
	Name     string `json:"name"`
	Tier     uint8  `json:"tier"`
	Filename string `json:"filename"`
}
