// Package search drives incremental talk searches against the catalogue API.
package search

import (
	"fmt"
	"strings"
)

// Field identifies a searchable part of a talk.
type Field string

const (
	FieldTitle          Field = "title"
	FieldDescription    Field = "description"
	FieldCategories     Field = "categories"
	FieldTags           Field = "tags"
	FieldAuthors        Field = "authors"
	FieldTranscriptions Field = "transcriptions"
)

// AllFields lists the vocabulary in display order.
var AllFields = []Field{
	FieldTitle,
	FieldDescription,
	FieldCategories,
	FieldTags,
	FieldAuthors,
	FieldTranscriptions,
}

var fieldLabels = map[Field]string{
	FieldTitle:          "Título",
	FieldDescription:    "Descrição",
	FieldCategories:     "Categorias",
	FieldTags:           "Tags",
	FieldAuthors:        "Autores",
	FieldTranscriptions: "Transcrições",
}

// Label returns the display label of the field.
func (f Field) Label() string {
	if l, ok := fieldLabels[f]; ok {
		return l
	}
	return string(f)
}

// Valid reports whether f belongs to the vocabulary.
func (f Field) Valid() bool {
	_, ok := fieldLabels[f]
	return ok
}

// ParseFields validates field identifiers, dropping duplicates.
func ParseFields(names []string) ([]Field, error) {
	fields := make([]Field, 0, len(names))
	seen := make(map[Field]bool, len(names))
	for _, n := range names {
		f := Field(strings.TrimSpace(n))
		if !f.Valid() {
			return nil, fmt.Errorf("unknown search field %q", n)
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		fields = append(fields, f)
	}
	return fields, nil
}

// Request is one page request against the catalogue.
type Request struct {
	Query  string
	Page   int
	Fields []Field
}

// TranscriptionSnippet is an excerpt of a track transcription around a match.
type TranscriptionSnippet struct {
	TrackName string `json:"track_name"`
	Snippet   string `json:"snippet"`
}

// ResultCard is a talk as listed in search results.
type ResultCard struct {
	ID                    int64                  `json:"id"`
	Title                 string                 `json:"title"`
	Slug                  string                 `json:"slug"`
	URL                   string                 `json:"url,omitempty"`
	Description           string                 `json:"description,omitempty"`
	Categories            string                 `json:"categories,omitempty"`
	Tags                  string                 `json:"tags,omitempty"`
	Authors               []string               `json:"authors"`
	TrackCount            int                    `json:"track_count"`
	TranscriptionSnippets []TranscriptionSnippet `json:"transcription_snippets,omitempty"`
}

// Page is one page of search results.
type Page struct {
	Results []ResultCard `json:"results"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	Pages   int          `json:"pages"`
}

// EmptyPage is the result of a blank query.
func EmptyPage() *Page {
	return &Page{Results: []ResultCard{}, Total: 0, Page: 1, Pages: 1}
}

// normalize enforces 1 <= Page <= Pages on data coming off the wire.
func (p *Page) normalize() {
	if p.Results == nil {
		p.Results = []ResultCard{}
	}
	if p.Total < 0 {
		p.Total = 0
	}
	if p.Pages < 1 {
		p.Pages = 1
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > p.Pages {
		p.Page = p.Pages
	}
}

// Track is an audio track of a talk.
type Track struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	AudioURL               string `json:"audio_url"`
	TranscriptionTimecoded string `json:"transcription_timecoded,omitempty"`
}

// Item is the full detail of a talk.
type Item struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	URL         string   `json:"url,omitempty"`
	Description string   `json:"description,omitempty"`
	Categories  string   `json:"categories,omitempty"`
	Tags        string   `json:"tags,omitempty"`
	Authors     []string `json:"authors"`
	Tracks      []Track  `json:"tracks"`
}

// MetaLine joins categories and tags the way cards display them.
func MetaLine(categories, tags string) string {
	var parts []string
	for _, p := range []string{categories, tags} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " · ")
}
