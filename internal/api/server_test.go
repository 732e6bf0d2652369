package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/newearthmartin/irdin/internal/catalog"
	"github.com/newearthmartin/irdin/internal/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubService struct {
	lastReq search.Request
	page    *search.Page
	item    *search.Item
	err     error
}

func (s *stubService) Search(_ context.Context, req search.Request) (*search.Page, error) {
	s.lastReq = req
	return s.page, s.err
}

func (s *stubService) Item(_ context.Context, slug string) (*search.Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.item == nil || s.item.Slug != slug {
		return nil, search.ErrNotFound
	}
	return s.item, nil
}

func get(t *testing.T, h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleSearch(t *testing.T) {
	svc := &stubService{page: &search.Page{
		Results: []search.ResultCard{{ID: 1, Title: "Zen", Slug: "zen", Authors: []string{}}},
		Total:   1, Page: 1, Pages: 1,
	}}
	h := NewServer(svc, "", nil).Handler()

	rec := get(t, h, "/api/search?q=zen+teste&page=2&fields=title&fields=tags")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, search.Request{
		Query:  "zen teste",
		Page:   2,
		Fields: []search.Field{search.FieldTitle, search.FieldTags},
	}, svc.lastReq)

	var page search.Page
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "zen", page.Results[0].Slug)
}

func TestHandleSearchBadParams(t *testing.T) {
	h := NewServer(&stubService{}, "", nil).Handler()

	rec := get(t, h, "/api/search?q=x&page=two")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, h, "/api/search?q=x&fields=colour")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, body.Code)
	assert.Contains(t, body.Message, "colour")
}

func TestHandleSearchServiceError(t *testing.T) {
	h := NewServer(&stubService{err: errors.New("disk I/O error")}, "", nil).Handler()

	rec := get(t, h, "/api/search?q=x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk")
}

func TestHandleItem(t *testing.T) {
	svc := &stubService{item: &search.Item{ID: 3, Title: "Zen e você", Slug: "zen-e-voce", Authors: []string{}, Tracks: []search.Track{}}}
	h := NewServer(svc, "", nil).Handler()

	for _, path := range []string{"/api/items/zen-e-voce", "/api/palestras/zen-e-voce"} {
		rec := get(t, h, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var item search.Item
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
		assert.Equal(t, "Zen e você", item.Title)
	}

	rec := get(t, h, "/api/items/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "palestra não encontrada")
}

func TestCORS(t *testing.T) {
	h := NewServer(&stubService{}, "", []string{"https://irdin.example.org"}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "https://irdin.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://irdin.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, h, "/health", "Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMediaRanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "audios"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audios", "a.mp3"), []byte("0123456789"), 0600))
	h := NewServer(&stubService{}, dir, nil).Handler()

	rec := get(t, h, "/media/audios/a.mp3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "0123456789", rec.Body.String())

	rec = get(t, h, "/media/audios/a.mp3", "Range", "bytes=2-5")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, "2345", rec.Body.String())

	rec = get(t, h, "/media/audios/a.mp3", "Range", "bytes=7-")
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "789", rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, h, "/media/audios/").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/media/missing.mp3").Code)
}

func TestClientAgainstCatalogue(t *testing.T) {
	store, err := catalog.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Import(context.Background(), strings.NewReader(`
talks:
  - title: Palestra de teste
    slug: palestra-de-teste
    authors: [Ana Souza]
    tracks:
      - name: Lado A
        mp3_url: https://cdn.example.org/a.mp3
        transcription: uma palestra de teste gravada
        transcription_timecoded: "[00:00:05] uma palestra"
  - title: Outra palestra
    slug: outra
`))
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(store, "", nil).Handler())
	defer srv.Close()

	cfg := search.DefaultClientConfig()
	cfg.BaseURL = srv.URL + "/api"
	cfg.RequestsPerSecond = 0
	client := search.NewClient(cfg)

	page, err := client.Search(context.Background(), search.Request{
		Query:  "palestra teste",
		Page:   1,
		Fields: []search.Field{search.FieldTitle, search.FieldTranscriptions},
	})
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "palestra-de-teste", page.Results[0].Slug)
	require.Len(t, page.Results[0].TranscriptionSnippets, 1)

	item, err := client.Item(context.Background(), "palestra-de-teste")
	require.NoError(t, err)
	require.Len(t, item.Tracks, 1)
	assert.Equal(t, "https://cdn.example.org/a.mp3", item.Tracks[0].AudioURL)

	_, err = client.Item(context.Background(), "nada")
	assert.ErrorIs(t, err, search.ErrNotFound)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}
