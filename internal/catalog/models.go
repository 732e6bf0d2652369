package catalog

import "time"

// Author is a speaker credited on talks.
type Author struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255"`
	Slug string `gorm:"size:255;uniqueIndex"`
}

// Talk is a catalogued recording ("palestra").
type Talk struct {
	ID          uint   `gorm:"primaryKey"`
	Title       string `gorm:"size:500"`
	Slug        string `gorm:"size:500;uniqueIndex"`
	URL         string `gorm:"size:500"`
	Description string
	SKU         string   `gorm:"size:255"`
	Categories  string   `gorm:"size:500"`
	Tags        string   `gorm:"size:500"`
	MediaFormat string   `gorm:"size:100"`
	Authors     []Author `gorm:"many2many:talk_authors"`
	Tracks      []Track
	ScrapedOn   *time.Time
}

// Track is one audio file of a talk with its transcription.
type Track struct {
	ID        uint   `gorm:"primaryKey"`
	TalkID    uint   `gorm:"index"`
	Name      string `gorm:"size:500"`
	MP3URL    string `gorm:"size:500"`
	LocalPath string `gorm:"size:500"`
	// Transcription is plain text used for search.
	Transcription string
	// TranscriptionTimecoded carries "[HH:MM:SS] text" lines for playback sync.
	TranscriptionTimecoded string
	TranscriptionMethod    string `gorm:"size:100"`
	TranscribedOn          *time.Time
}
