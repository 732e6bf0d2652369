// Package catalog stores talks, authors and tracks in SQLite and answers
// catalogue searches.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/newearthmartin/irdin/internal/search"
	"github.com/newearthmartin/irdin/internal/textmatch"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultPageSize is the number of results per search page.
const DefaultPageSize = 20

const likeEscape = `ESCAPE '\'`

// fieldClauses maps each search field to a predicate taking one LIKE pattern.
var fieldClauses = map[search.Field]string{
	search.FieldTitle:       "talks.title LIKE ? " + likeEscape,
	search.FieldDescription: "talks.description LIKE ? " + likeEscape,
	search.FieldCategories:  "talks.categories LIKE ? " + likeEscape,
	search.FieldTags:        "talks.tags LIKE ? " + likeEscape,
	search.FieldAuthors: "EXISTS (SELECT 1 FROM talk_authors ta JOIN authors a ON a.id = ta.author_id " +
		"WHERE ta.talk_id = talks.id AND a.name LIKE ? " + likeEscape + ")",
	search.FieldTranscriptions: "EXISTS (SELECT 1 FROM tracks tr " +
		"WHERE tr.talk_id = talks.id AND tr.transcription LIKE ? " + likeEscape + ")",
}

// Store is the SQLite-backed catalogue.
type Store struct {
	DB *gorm.DB
	db *sql.DB

	pageSize  int
	mediaURL  string
	snippetSz int
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize sets the number of results per page.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithMediaURL sets the URL prefix for locally stored audio files.
func WithMediaURL(prefix string) Option {
	return func(s *Store) { s.mediaURL = prefix }
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("creating db dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.AutoMigrate(&Author{}, &Talk{}, &Track{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	s := &Store{
		DB:        db,
		db:        sqlDB,
		pageSize:  DefaultPageSize,
		mediaURL:  "/media/",
		snippetSz: textmatch.DefaultServerSnippetLen,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Search returns one page of talks matching every word of the query in at
// least one of the requested fields. No fields means all fields.
func (s *Store) Search(ctx context.Context, req search.Request) (*search.Page, error) {
	words := textmatch.Terms(req.Query)
	if len(words) == 0 {
		return search.EmptyPage(), nil
	}

	fields := req.Fields
	if len(fields) == 0 {
		fields = search.AllFields
	}
	filter := matchAll(words, fields)

	var total int64
	if err := s.DB.WithContext(ctx).Model(&Talk{}).Scopes(filter).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting talks: %w", err)
	}

	pages := int((total + int64(s.pageSize) - 1) / int64(s.pageSize))
	if pages < 1 {
		pages = 1
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}

	var talks []Talk
	err := s.DB.WithContext(ctx).
		Scopes(filter).
		Preload("Authors", func(db *gorm.DB) *gorm.DB { return db.Order("authors.id") }).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("tracks.id") }).
		Order("talks.id").
		Offset((page - 1) * s.pageSize).
		Limit(s.pageSize).
		Find(&talks).Error
	if err != nil {
		return nil, fmt.Errorf("querying talks: %w", err)
	}

	withSnippets := false
	for _, f := range fields {
		if f == search.FieldTranscriptions {
			withSnippets = true
		}
	}

	results := make([]search.ResultCard, 0, len(talks))
	for _, t := range talks {
		card := search.ResultCard{
			ID:          int64(t.ID),
			Title:       t.Title,
			Slug:        t.Slug,
			URL:         t.URL,
			Description: t.Description,
			Categories:  t.Categories,
			Tags:        t.Tags,
			Authors:     authorNames(t.Authors),
			TrackCount:  len(t.Tracks),
		}
		if withSnippets {
			card.TranscriptionSnippets = s.snippets(t.Tracks, words)
		}
		results = append(results, card)
	}

	logrus.WithFields(logrus.Fields{
		"query":  req.Query,
		"fields": fields,
		"total":  total,
		"page":   page,
	}).Debug("Catalogue search")

	return &search.Page{Results: results, Total: int(total), Page: page, Pages: pages}, nil
}

// Item returns the full detail of the talk with slug.
func (s *Store) Item(ctx context.Context, slug string) (*search.Item, error) {
	var t Talk
	err := s.DB.WithContext(ctx).
		Preload("Authors", func(db *gorm.DB) *gorm.DB { return db.Order("authors.id") }).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB { return db.Order("tracks.id") }).
		Where("slug = ?", slug).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, search.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying talk %s: %w", slug, err)
	}

	item := &search.Item{
		ID:          int64(t.ID),
		Title:       t.Title,
		Slug:        t.Slug,
		URL:         t.URL,
		Description: t.Description,
		Categories:  t.Categories,
		Tags:        t.Tags,
		Authors:     authorNames(t.Authors),
		Tracks:      make([]search.Track, 0, len(t.Tracks)),
	}
	for _, tr := range t.Tracks {
		item.Tracks = append(item.Tracks, search.Track{
			ID:                     int64(tr.ID),
			Name:                   tr.Name,
			AudioURL:               s.audioURL(tr),
			TranscriptionTimecoded: tr.TranscriptionTimecoded,
		})
	}
	return item, nil
}

// Counts reports the number of talks and tracks stored.
func (s *Store) Counts(ctx context.Context) (talks, tracks int64, err error) {
	if err = s.DB.WithContext(ctx).Model(&Talk{}).Count(&talks).Error; err != nil {
		return 0, 0, fmt.Errorf("counting talks: %w", err)
	}
	if err = s.DB.WithContext(ctx).Model(&Track{}).Count(&tracks).Error; err != nil {
		return 0, 0, fmt.Errorf("counting tracks: %w", err)
	}
	return talks, tracks, nil
}

func (s *Store) snippets(tracks []Track, words []string) []search.TranscriptionSnippet {
	out := []search.TranscriptionSnippet{}
	for _, tr := range tracks {
		if tr.Transcription == "" {
			continue
		}
		if snippet, ok := textmatch.FindSnippet(tr.Transcription, words, s.snippetSz); ok {
			out = append(out, search.TranscriptionSnippet{TrackName: tr.Name, Snippet: snippet})
		}
	}
	return out
}

func (s *Store) audioURL(tr Track) string {
	if tr.LocalPath != "" {
		return s.mediaURL + strings.TrimLeft(filepath.ToSlash(tr.LocalPath), "/")
	}
	return tr.MP3URL
}

// matchAll ANDs one OR-group per word across the selected fields.
func matchAll(words []string, fields []search.Field) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, w := range words {
			pattern := "%" + escapeLike(w) + "%"
			var clauses []string
			var args []interface{}
			for _, f := range fields {
				clause, ok := fieldClauses[f]
				if !ok {
					continue
				}
				clauses = append(clauses, clause)
				args = append(args, pattern)
			}
			if len(clauses) == 0 {
				return db.Where("1 = 0")
			}
			db = db.Where("("+strings.Join(clauses, " OR ")+")", args...)
		}
		return db
	}
}

var likeReplacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeReplacer.Replace(s)
}

func authorNames(authors []Author) []string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		names = append(names, a.Name)
	}
	return names
}

var _ search.Service = (*Store)(nil)
