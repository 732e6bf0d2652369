package mcp

import (
	"fmt"
	"strings"

	"github.com/newearthmartin/irdin/internal/feedback"
	"github.com/newearthmartin/irdin/internal/search"
	"github.com/newearthmartin/irdin/internal/session"
	"github.com/newearthmartin/irdin/internal/textmatch"
)

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, pluralForm)
}

func trackCount(n int) string {
	return plural(n, "faixa de áudio", "faixas de áudio")
}

// ResultCount renders the total line shown above search results.
func ResultCount(total int) string {
	return plural(total, "resultado encontrado", "resultados encontrados")
}

// PageLine renders the pagination indicator.
func PageLine(page, pages int) string {
	return fmt.Sprintf("Página %d de %d", page, pages)
}

// RenderResults renders a search state as markdown with query matches in bold.
// A failed search keeps the previous results below an error line.
func RenderResults(st search.State) string {
	if strings.TrimSpace(st.Query) == "" {
		return "Digite algo para buscar."
	}
	if len(st.Fields) == 0 {
		return "Nenhum campo de busca selecionado."
	}

	terms := st.Terms()
	var b strings.Builder
	if st.Err != nil {
		fmt.Fprintf(&b, "Falha na busca: %v\n", st.Err)
	}
	b.WriteString(ResultCount(st.Total))
	if st.Pages > 1 {
		b.WriteString(" · ")
		b.WriteString(PageLine(st.Page, st.Pages))
	}
	b.WriteString("\n")

	for _, r := range st.Results {
		b.WriteString("\n")
		renderCard(&b, r, terms)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCard(b *strings.Builder, r search.ResultCard, terms []string) {
	fmt.Fprintf(b, "### %s\n", textmatch.Markdown(r.Title, terms))
	fmt.Fprintf(b, "slug: %s\n", r.Slug)
	if len(r.Authors) > 0 {
		fmt.Fprintf(b, "%s\n", textmatch.Markdown(strings.Join(r.Authors, ", "), terms))
	}
	if meta := search.MetaLine(r.Categories, r.Tags); meta != "" {
		fmt.Fprintf(b, "%s\n", textmatch.Markdown(meta, terms))
	}
	if r.Description != "" {
		snippet := textmatch.Snippet(r.Description, terms, textmatch.DefaultSnippetLen)
		fmt.Fprintf(b, "%s\n", textmatch.Markdown(snippet, terms))
	}
	for _, ts := range r.TranscriptionSnippets {
		fmt.Fprintf(b, "> %s: %s\n", ts.TrackName, textmatch.Markdown(ts.Snippet, terms))
	}
	if r.TrackCount > 0 {
		fmt.Fprintf(b, "%s\n", trackCount(r.TrackCount))
	}
}

// RenderSession renders an opened talk with its transcripts.
func RenderSession(s *session.Session) string {
	item := s.Item
	terms := s.Terms

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", textmatch.Markdown(item.Title, terms))
	fmt.Fprintf(&b, "session: %s\n", s.ID)
	if len(item.Authors) > 0 {
		fmt.Fprintf(&b, "%s\n", textmatch.Markdown(strings.Join(item.Authors, ", "), terms))
	}
	if meta := search.MetaLine(item.Categories, item.Tags); meta != "" {
		fmt.Fprintf(&b, "%s\n", textmatch.Markdown(meta, terms))
	}
	if item.URL != "" {
		fmt.Fprintf(&b, "%s\n", item.URL)
	}
	if item.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", textmatch.Markdown(item.Description, terms))
	}
	fmt.Fprintf(&b, "\n%s\n", trackCount(len(s.Tracks)))

	for _, t := range s.Tracks {
		fmt.Fprintf(&b, "\n## %s (track %s)\n", t.Info.Name, t.ID)
		if t.Info.AudioURL != "" {
			fmt.Fprintf(&b, "%s\n", t.Info.AudioURL)
		}
		for i, l := range t.Lines {
			text := textmatch.Markdown(l.Text, terms)
			if l.Anchored() {
				fmt.Fprintf(&b, "%d. [%s] %s\n", i, l.Timestamp, text)
			} else {
				fmt.Fprintf(&b, "%d. %s\n", i, text)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderStatus renders per-track playback state.
func RenderStatus(status []session.TrackStatus) string {
	if len(status) == 0 {
		return "No tracks"
	}
	var b strings.Builder
	for _, st := range status {
		state := "paused"
		if st.Playing {
			state = "playing"
		}
		fmt.Fprintf(&b, "- track %s (%s): %s at %.1fs", st.TrackID, st.Name, state, st.Position)
		if st.ActiveIndex >= 0 {
			fmt.Fprintf(&b, ", line %d: %s", st.ActiveIndex, st.ActiveLine)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderEvents renders recorded events, oldest first.
func RenderEvents(events []feedback.Event) string {
	var b strings.Builder
	for _, e := range events {
		fmt.Fprintf(&b, "%s %s", e.Timestamp.Format("15:04:05.000"), e.Type)
		switch d := e.Data.(type) {
		case feedback.SearchSettledData:
			fmt.Fprintf(&b, " %q: %s, %s", d.Query, ResultCount(d.Total), PageLine(d.Page, d.Pages))
		case feedback.SearchFailedData:
			fmt.Fprintf(&b, " %q: %s", d.Query, d.Error)
		case feedback.SessionData:
			fmt.Fprintf(&b, " %s (%s)", d.Slug, trackCount(d.Tracks))
		case feedback.PlaybackData:
			fmt.Fprintf(&b, " track %s at %.1fs", d.TrackID, d.Position)
		case feedback.ActiveLineData:
			fmt.Fprintf(&b, " track %s line %d [%s] %s", d.TrackID, d.Index, d.Timestamp, d.Text)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
