package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/beatmapar/loader/internal/model"
	"github.com/beatmapar/loader/pkg/core"
	"gorm.io/datatypes"
)

// ArchiveInfo identifies the archive a preview was read from.
type ArchiveInfo struct {
	Source  string
	ModTime time.Time
	Size    int64
}

// summariesToJSON converts difficulty summaries to datatypes.JSON for DB storage.
func summariesToJSON(summaries []core.DifficultySummary) (datatypes.JSON, error) {
	if len(summaries) == 0 {
		return datatypes.JSON("[]"), nil
	}
	entries := make([]model.DifficultyEntry, 0, len(summaries))
	for _, s := range summaries {
		entries = append(entries, model.DifficultyEntry{
			Name:     s.Name,
			Tier:     uint8(s.Tier),
			Filename: s.Filename,
		})
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("error marshalling difficulties: %w", err)
	}
	return datatypes.JSON(data), nil
}

// PreviewToGorm converts a loaded preview to a GORM model.Song.
func PreviewToGorm(info ArchiveInfo, p core.Preview, summaries []core.DifficultySummary) (model.Song, error) {
	difficulties, err := summariesToJSON(summaries)
	if err != nil {
		return model.Song{}, err
	}

	song := model.Song{
		Source:          info.Source,
		ModTimeUnix:     info.ModTime.UnixNano(),
		Size:            info.Size,
		SongName:        p.SongName,
		SongSubName:     p.SongSubName,
		SongAuthorName:  p.SongAuthorName,
		LevelAuthorName: p.LevelAuthorName,
		BeatsPerMinute:  p.BeatsPerMinute,
		SongTimeOffset:  p.SongTimeOffset,
		Difficulties:    difficulties,
	}
	if p.CoverImage != nil {
		b := p.CoverImage.Bounds()
		song.CoverWidth = b.Dx()
		song.CoverHeight = b.Dy()
	}
	return song, nil
}

// SongToCore converts a GORM model.Song back to its preview and summaries.
// The cover image is not stored, so Preview.CoverImage is nil.
func SongToCore(s model.Song) (core.Preview, []core.DifficultySummary, error) {
	p := core.Preview{
		SongName:        s.SongName,
		SongSubName:     s.SongSubName,
		SongAuthorName:  s.SongAuthorName,
		LevelAuthorName: s.LevelAuthorName,
		BeatsPerMinute:  s.BeatsPerMinute,
		SongTimeOffset:  s.SongTimeOffset,
	}

	var entries []model.DifficultyEntry
	if len(s.Difficulties) > 0 {
		if err := json.Unmarshal(s.Difficulties, &entries); err != nil {
			return p, nil, fmt.Errorf("error unmarshalling difficulties of %s: %w", s.Source, err)
		}
	}
	summaries := make([]core.DifficultySummary, 0, len(entries))
	for _, e := range entries {
		summaries = append(summaries, core.DifficultySummary{
			Name:     e.Name,
			Tier:     core.DifficultyRank(e.Tier),
			Filename: e.Filename,
		})
	}
	return p, summaries, nil
}
