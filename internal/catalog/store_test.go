package catalog

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/newearthmartin/irdin/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSeededStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(":memory:", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := s.ImportFile(context.Background(), "testdata/seed.yaml")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	return s
}

func slugs(p *search.Page) []string {
	out := make([]string, 0, len(p.Results))
	for _, r := range p.Results {
		out = append(out, r.Slug)
	}
	return out
}

func TestSearchEmptyQuery(t *testing.T) {
	s := newSeededStore(t)

	page, err := s.Search(context.Background(), search.Request{Query: "   ", Page: 3})
	require.NoError(t, err)
	assert.Equal(t, search.EmptyPage(), page)
}

func TestSearchEveryWordMustMatch(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	page, err := s.Search(ctx, search.Request{Query: "palestra", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"palestra-de-teste", "zen-e-voce"}, slugs(page))

	page, err = s.Search(ctx, search.Request{Query: "palestra teste", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"palestra-de-teste"}, slugs(page))
	assert.Equal(t, 1, page.Total)
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	s := newSeededStore(t)

	page, err := s.Search(context.Background(), search.Request{Query: "ZEN", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"palestra-de-teste", "zen-e-voce"}, slugs(page))
}

func TestSearchRestrictsFields(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	page, err := s.Search(ctx, search.Request{Query: "palestra", Page: 1, Fields: []search.Field{search.FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, []string{"palestra-de-teste"}, slugs(page))

	page, err = s.Search(ctx, search.Request{Query: "ana", Page: 1, Fields: []search.Field{search.FieldAuthors}})
	require.NoError(t, err)
	assert.Equal(t, []string{"palestra-de-teste", "zen-e-voce"}, slugs(page))
	assert.Equal(t, []string{"Ana Souza", "Bruno Lima"}, page.Results[0].Authors)

	page, err = s.Search(ctx, search.Request{Query: "ana", Page: 1, Fields: []search.Field{search.FieldTags}})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
	assert.Equal(t, 1, page.Pages)
}

func TestSearchEscapesWildcards(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	page, err := s.Search(ctx, search.Request{Query: "100%", Page: 1, Fields: []search.Field{search.FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, []string{"atencao-plena"}, slugs(page))

	page, err = s.Search(ctx, search.Request{Query: "_", Page: 1, Fields: []search.Field{search.FieldTitle}})
	require.NoError(t, err)
	assert.Equal(t, []string{"atencao-plena"}, slugs(page))

	page, err = s.Search(ctx, search.Request{Query: "%", Page: 1, Fields: []search.Field{search.FieldDescription}})
	require.NoError(t, err)
	assert.Empty(t, page.Results)
}

func TestSearchTranscriptionSnippets(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	page, err := s.Search(ctx, search.Request{Query: "respiração", Page: 1})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	card := page.Results[0]
	assert.Equal(t, 2, card.TrackCount)
	require.Len(t, card.TranscriptionSnippets, 1)
	assert.Equal(t, "Lado A", card.TranscriptionSnippets[0].TrackName)
	assert.Contains(t, card.TranscriptionSnippets[0].Snippet, "respiração")

	// snippets are only computed when transcriptions are searched
	page, err = s.Search(ctx, search.Request{Query: "teste", Page: 1, Fields: []search.Field{search.FieldTitle}})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Empty(t, page.Results[0].TranscriptionSnippets)
}

func TestSearchPagination(t *testing.T) {
	s, err := Open(":memory:", WithPageSize(2))
	require.NoError(t, err)
	defer s.Close()

	var b strings.Builder
	b.WriteString("talks:\n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "  - title: Sessão %d\n    slug: sessao-%d\n", i, i)
	}
	_, err = s.Import(context.Background(), strings.NewReader(b.String()))
	require.NoError(t, err)

	ctx := context.Background()
	page, err := s.Search(ctx, search.Request{Query: "sessão", Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Pages)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, []string{"sessao-3", "sessao-4"}, slugs(page))

	page, err = s.Search(ctx, search.Request{Query: "sessão", Page: 99})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, []string{"sessao-5"}, slugs(page))

	page, err = s.Search(ctx, search.Request{Query: "sessão", Page: -4})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
}

func TestItem(t *testing.T) {
	s := newSeededStore(t, WithMediaURL("http://localhost:8000/media/"))

	item, err := s.Item(context.Background(), "palestra-de-teste")
	require.NoError(t, err)
	assert.Equal(t, "Palestra de teste sobre meditação", item.Title)
	assert.Equal(t, []string{"Ana Souza", "Bruno Lima"}, item.Authors)
	require.Len(t, item.Tracks, 2)
	assert.Equal(t, "http://localhost:8000/media/audios/teste-a.mp3", item.Tracks[0].AudioURL)
	assert.Contains(t, item.Tracks[0].TranscriptionTimecoded, "[00:00:15] Hoje vamos")
	assert.Equal(t, "https://cdn.example.org/teste-b.mp3", item.Tracks[1].AudioURL)

	_, err = s.Item(context.Background(), "nope")
	assert.ErrorIs(t, err, search.ErrNotFound)
}

func TestImportIsIdempotent(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	_, err := s.ImportFile(ctx, "testdata/seed.yaml")
	require.NoError(t, err)

	talks, tracks, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), talks)
	assert.Equal(t, int64(3), tracks)

	var authors int64
	require.NoError(t, s.DB.Model(&Author{}).Count(&authors).Error)
	assert.Equal(t, int64(3), authors)
}

func TestImportReplacesTracksAndAuthors(t *testing.T) {
	s := newSeededStore(t)
	ctx := context.Background()

	_, err := s.Import(ctx, strings.NewReader(`
talks:
  - title: Zen e você (revisto)
    slug: zen-e-voce
`))
	require.NoError(t, err)

	item, err := s.Item(ctx, "zen-e-voce")
	require.NoError(t, err)
	assert.Equal(t, "Zen e você (revisto)", item.Title)
	assert.Empty(t, item.Tracks)
	assert.Empty(t, item.Authors)
}

func TestImportRejectsBadSeed(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Import(context.Background(), strings.NewReader("talks: [{title: ''}]"))
	assert.Error(t, err)

	_, err = s.Import(context.Background(), strings.NewReader("talks: {"))
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "ana-souza", Slugify("Ana Souza"))
	assert.Equal(t, "zen-e-você", Slugify("  Zen e  você! "))
	assert.Equal(t, "", Slugify("!!!"))
}
