// Package catalog indexes the previews of a song library in a SQL database.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/beatmapar/loader/internal/config"
	"github.com/beatmapar/loader/internal/model"
	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrNotFound is returned by Get for an unknown source.
var ErrNotFound = errors.New("song not found in catalog")

// Catalog stores one model.Song per archive.
type Catalog struct {
	DB     *gorm.DB
	Logger zerolog.Logger
}

// Open connects to the database selected by cfg and migrates the schema.
func Open(cfg config.CatalogConfig, log zerolog.Logger) (*Catalog, error) {
	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "", "sqlite":
		db, err = openSQLite(cfg.Path)
	case "postgres":
		db, err = openPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	c := &Catalog{DB: db, Logger: log}
	if err := c.Setup(); err != nil {
		return nil, err
	}
	log.Info().Str("driver", db.Dialector.Name()).Msg("Catalog ready")
	return c, nil
}

func openPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres catalog requires a dsn")
	}
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres catalog: %w", err)
	}
	return db, nil
}

// openSQLite opens the database file at path, or a private in-memory
// database when path is empty or ":memory:".
func openSQLite(path string) (*gorm.DB, error) {
	memory := path == "" || path == ":memory:"
	if memory {
		path = "file::memory:"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite catalog %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	// every connection to file::memory: is a separate database
	if memory {
		sqlDB.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA synchronous = NORMAL;",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL;")
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// Setup migrates the catalog tables.
func (c *Catalog) Setup() error {
	c.Logger.Debug().Msg("Migrating catalog schema")
	if err := c.DB.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate catalog schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (c *Catalog) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert inserts song or replaces the row with the same Source.
func (c *Catalog) Upsert(ctx context.Context, song *model.Song) error {
	err := c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source"}},
		UpdateAll: true,
	}).Create(song).Error
	if err != nil {
		return fmt.Errorf("error upserting %s: %w", song.Source, err)
	}
	c.Logger.Debug().Str("source", song.Source).Str("song", song.SongName).Msg("Upserted song")
	return nil
}

// Fresh reports whether the catalog already holds source at the given
// modification time and size, so it need not be read again.
func (c *Catalog) Fresh(ctx context.Context, source string, modTime time.Time, size int64) (bool, error) {
	var count int64
	err := c.DB.WithContext(ctx).Model(&model.Song{}).
		Where("source = ? AND mod_time_unix = ? AND size = ?", source, modTime.UnixNano(), size).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("error checking %s: %w", source, err)
	}
	return count > 0, nil
}

// Get returns the song stored for source, or ErrNotFound.
func (c *Catalog) Get(ctx context.Context, source string) (model.Song, error) {
	var song model.Song
	err := c.DB.WithContext(ctx).Where("source = ?", source).First(&song).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return song, fmt.Errorf("%s: %w", source, ErrNotFound)
	}
	if err != nil {
		return song, fmt.Errorf("error reading %s: %w", source, err)
	}
	return song, nil
}

// Query filters List. Zero fields do not filter.
type Query struct {
	// Author matches the song author or the level author, case-insensitively.
	Author string
	// Search matches a substring of the song name, case-insensitively.
	Search string
	Limit  int
	Offset int
}

// List returns the songs matching q ordered by name.
func (c *Catalog) List(ctx context.Context, q Query) ([]model.Song, error) {
	tx := c.DB.WithContext(ctx).Model(&model.Song{})
	if q.Author != "" {
		author := strings.ToLower(q.Author)
		tx = tx.Where("LOWER(song_author_name) = ? OR LOWER(level_author_name) = ?", author, author)
	}
	if q.Search != "" {
		tx = tx.Where("LOWER(song_name) LIKE ?", "%"+strings.ToLower(q.Search)+"%")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var songs []model.Song
	if err := tx.Order("song_name").Order("source").Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("error listing songs: %w", err)
	}
	return songs, nil
}

// Prune deletes the songs whose source lies under dir but is not in keep,
// i.e. archives removed from the library since the last scan.
func (c *Catalog) Prune(ctx context.Context, dir string, keep []string) (int64, error) {
	var sources []string
	if err := c.DB.WithContext(ctx).Model(&model.Song{}).Pluck("source", &sources).Error; err != nil {
		return 0, fmt.Errorf("error listing sources: %w", err)
	}

	kept := make(map[string]struct{}, len(keep))
	for _, s := range keep {
		kept[s] = struct{}{}
	}
	var stale []string
	for _, s := range sources {
		if _, ok := kept[s]; !ok && strings.HasPrefix(s, dir) {
			stale = append(stale, s)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	res := c.DB.WithContext(ctx).Unscoped().Where("source IN ?", stale).Delete(&model.Song{})
	if res.Error != nil {
		return 0, fmt.Errorf("error pruning catalog: %w", res.Error)
	}
	c.Logger.Info().Int64("count", res.RowsAffected).Str("dir", dir).Msg("Pruned stale songs")
	return res.RowsAffected, nil
}
