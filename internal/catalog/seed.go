package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Seed is the YAML document accepted by Import.
type Seed struct {
	Talks []SeedTalk `yaml:"talks"`
}

// SeedTalk describes one talk in a seed file.
type SeedTalk struct {
	Title       string      `yaml:"title"`
	Slug        string      `yaml:"slug"`
	URL         string      `yaml:"url"`
	Description string      `yaml:"description"`
	SKU         string      `yaml:"sku"`
	Categories  string      `yaml:"categories"`
	Tags        string      `yaml:"tags"`
	MediaFormat string      `yaml:"media_format"`
	Authors     []string    `yaml:"authors"`
	Tracks      []SeedTrack `yaml:"tracks"`
}

// SeedTrack describes one audio track in a seed file.
type SeedTrack struct {
	Name                   string `yaml:"name"`
	MP3URL                 string `yaml:"mp3_url"`
	LocalPath              string `yaml:"local_path"`
	Transcription          string `yaml:"transcription"`
	TranscriptionTimecoded string `yaml:"transcription_timecoded"`
	TranscriptionMethod    string `yaml:"transcription_method"`
}

// ImportFile imports the seed file at path.
func (s *Store) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("error opening seed file: %w", err)
	}
	defer f.Close()
	return s.Import(ctx, f)
}

// Import upserts every talk in the YAML seed read from r, keyed by slug.
// Existing tracks of an imported talk are replaced. It returns the number of
// talks written.
func (s *Store) Import(ctx context.Context, r io.Reader) (int, error) {
	var seed Seed
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("error parsing seed: %w", err)
	}

	for i, st := range seed.Talks {
		if strings.TrimSpace(st.Slug) == "" {
			st.Slug = Slugify(st.Title)
		}
		if st.Slug == "" {
			return 0, fmt.Errorf("seed talk %d has neither slug nor title", i)
		}
		seed.Talks[i] = st
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, st := range seed.Talks {
			if err := importTalk(tx, st); err != nil {
				return fmt.Errorf("importing %s: %w", st.Slug, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logrus.WithField("talks", len(seed.Talks)).Info("Catalogue seed imported")
	return len(seed.Talks), nil
}

func importTalk(tx *gorm.DB, st SeedTalk) error {
	var talk Talk
	err := tx.Where("slug = ?", st.Slug).First(&talk).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("querying existing talk: %w", err)
	}

	talk.Title = st.Title
	talk.Slug = st.Slug
	talk.URL = st.URL
	talk.Description = st.Description
	talk.SKU = st.SKU
	talk.Categories = st.Categories
	talk.Tags = st.Tags
	talk.MediaFormat = st.MediaFormat
	if err := tx.Save(&talk).Error; err != nil {
		return fmt.Errorf("saving talk: %w", err)
	}

	authors := make([]Author, 0, len(st.Authors))
	for _, name := range st.Authors {
		a, err := upsertAuthor(tx, name)
		if err != nil {
			return err
		}
		authors = append(authors, a)
	}
	assoc := tx.Model(&talk).Association("Authors")
	if len(authors) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(authors)
	}
	if err != nil {
		return fmt.Errorf("linking authors: %w", err)
	}

	if err := tx.Where("talk_id = ?", talk.ID).Delete(&Track{}).Error; err != nil {
		return fmt.Errorf("deleting old tracks: %w", err)
	}
	if len(st.Tracks) == 0 {
		return nil
	}
	tracks := make([]Track, 0, len(st.Tracks))
	for _, tr := range st.Tracks {
		tracks = append(tracks, Track{
			TalkID:                 talk.ID,
			Name:                   tr.Name,
			MP3URL:                 tr.MP3URL,
			LocalPath:              tr.LocalPath,
			Transcription:          tr.Transcription,
			TranscriptionTimecoded: tr.TranscriptionTimecoded,
			TranscriptionMethod:    tr.TranscriptionMethod,
		})
	}
	if err := tx.Create(&tracks).Error; err != nil {
		return fmt.Errorf("creating tracks: %w", err)
	}
	return nil
}

func upsertAuthor(tx *gorm.DB, name string) (Author, error) {
	name = strings.TrimSpace(name)
	slug := Slugify(name)

	var a Author
	err := tx.Where("slug = ?", slug).First(&a).Error
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Author{}, fmt.Errorf("querying author: %w", err)
	}

	a = Author{Name: name, Slug: slug}
	if err := tx.Create(&a).Error; err != nil {
		return Author{}, fmt.Errorf("creating author %q: %w", name, err)
	}
	return a, nil
}

// Slugify lowercases s and joins its letter and digit runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
