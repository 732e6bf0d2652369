// Package mcp exposes talk search and transcript playback as MCP tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/newearthmartin/irdin/internal/feedback"
	"github.com/newearthmartin/irdin/internal/search"
	"github.com/newearthmartin/irdin/internal/session"
	"github.com/sirupsen/logrus"
)

// DefaultWaitTimeout bounds how long a tool waits for a search to settle.
const DefaultWaitTimeout = 30 * time.Second

const noCurrentPage = "A busca atual ainda não tem resultados para paginar."

// Server implements the MCP server using the official SDK
type Server struct {
	mcpServer   *mcp.Server
	search      *search.Controller
	sessions    *session.Manager
	recorder    *feedback.Recorder
	waitTimeout time.Duration
}

// Tool input types

// EmptyInput is for tools that take no arguments
type EmptyInput struct{}

type SearchTalksInput struct {
	Query  string   `json:"query" jsonschema:"the search text; every word must match"`
	Fields []string `json:"fields,omitempty" jsonschema:"optional fields to search: title, description, categories, tags, authors, transcriptions"`
}

type SetFieldsInput struct {
	Fields []string `json:"fields" jsonschema:"fields to search: title, description, categories, tags, authors, transcriptions"`
}

type ToggleFieldInput struct {
	Field string `json:"field" jsonschema:"the field to add or remove"`
}

type OpenTalkInput struct {
	Slug string `json:"slug" jsonschema:"the slug of the talk to open"`
}

type SessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"the detail session ID"`
}

type TrackInput struct {
	SessionID string `json:"sessionId" jsonschema:"the detail session ID"`
	TrackID   string `json:"trackId" jsonschema:"the track ID"`
}

type SeekLineInput struct {
	SessionID string `json:"sessionId" jsonschema:"the detail session ID"`
	TrackID   string `json:"trackId" jsonschema:"the track ID"`
	Line      int    `json:"line" jsonschema:"zero-based index of the transcript line"`
}

// NewServer creates a new MCP server with the official SDK
func NewServer(controller *search.Controller, sessions *session.Manager, recorder *feedback.Recorder) *Server {
	s := &Server{
		search:      controller,
		sessions:    sessions,
		recorder:    recorder,
		waitTimeout: DefaultWaitTimeout,
	}

	impl := &mcp.Implementation{
		Name:    "irdin",
		Version: "1.0.0",
	}
	s.mcpServer = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "search_talks",
		Description: "Search the talk catalogue; results are highlighted and paginated",
	}, s.handleSearchTalks)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_fields",
		Description: "Choose which fields the search looks in",
	}, s.handleSetFields)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "toggle_field",
		Description: "Add or remove one search field",
	}, s.handleToggleField)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "next_page",
		Description: "Show the next page of search results",
	}, s.handleNextPage)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "previous_page",
		Description: "Show the previous page of search results",
	}, s.handlePreviousPage)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "open_talk",
		Description: "Open a talk with its tracks and timestamped transcripts",
	}, s.handleOpenTalk)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "close_talk",
		Description: "Close an open talk and release its players",
	}, s.handleCloseTalk)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List open talks",
	}, s.handleListSessions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "play_track",
		Description: "Start playing a track; any other playing track is paused",
	}, s.handlePlayTrack)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "pause_track",
		Description: "Pause a track",
	}, s.handlePauseTrack)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "seek_line",
		Description: "Jump a track to a transcript line and play from there",
	}, s.handleSeekLine)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "playback_status",
		Description: "Show position and active transcript line of every track of a talk",
	}, s.handlePlaybackStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "export_session",
		Description: "Export an open talk's transcripts to a JSON file",
	}, s.handleExportSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "recent_events",
		Description: "Show recent search and playback events",
	}, s.handleRecentEvents)
}

// Run serves MCP over stdio until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	logrus.Info("Starting MCP server on stdio")
	if err := s.mcpServer.Run(ctx, mcp.NewStdioTransport()); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

func textResult(text string) *mcp.CallToolResultFor[any] {
	return &mcp.CallToolResultFor[any]{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *Server) settle(ctx context.Context) (search.State, error) {
	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()
	return s.search.Wait(ctx)
}

func (s *Server) searchResult(ctx context.Context) (*mcp.CallToolResultFor[any], error) {
	st, err := s.settle(ctx)
	if err != nil {
		return nil, fmt.Errorf("search did not complete: %w", err)
	}
	if st.Err != nil {
		logrus.WithError(st.Err).WithField("query", st.Query).Debug("Rendering kept results after failed search")
	}
	return textResult(RenderResults(st)), nil
}

func (s *Server) handleSearchTalks(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SearchTalksInput]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if len(args.Fields) > 0 {
		fields, err := search.ParseFields(args.Fields)
		if err != nil {
			return nil, err
		}
		s.search.SetFields(fields)
	}
	s.search.SetQuery(args.Query)

	logrus.WithFields(logrus.Fields{
		"query":  args.Query,
		"fields": args.Fields,
	}).Debug("MCP search_talks")

	return s.searchResult(ctx)
}

func (s *Server) handleSetFields(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SetFieldsInput]) (*mcp.CallToolResultFor[any], error) {
	fields, err := search.ParseFields(params.Arguments.Fields)
	if err != nil {
		return nil, err
	}
	s.search.SetFields(fields)
	return s.searchResult(ctx)
}

func (s *Server) handleToggleField(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[ToggleFieldInput]) (*mcp.CallToolResultFor[any], error) {
	f := search.Field(strings.TrimSpace(params.Arguments.Field))
	if !f.Valid() {
		return nil, fmt.Errorf("unknown search field %q", params.Arguments.Field)
	}
	s.search.ToggleField(f)
	return s.searchResult(ctx)
}

func (s *Server) handleNextPage(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	if !s.search.Next() {
		if st := s.search.State(); st.Page < st.Pages {
			return textResult(noCurrentPage), nil
		}
		return textResult("Já está na última página."), nil
	}
	return s.searchResult(ctx)
}

func (s *Server) handlePreviousPage(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	if !s.search.Previous() {
		if st := s.search.State(); st.Page > 1 {
			return textResult(noCurrentPage), nil
		}
		return textResult("Já está na primeira página."), nil
	}
	return s.searchResult(ctx)
}

func (s *Server) handleOpenTalk(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[OpenTalkInput]) (*mcp.CallToolResultFor[any], error) {
	sess, err := s.sessions.Open(ctx, params.Arguments.Slug, s.search.State().Query)
	if errors.Is(err, search.ErrNotFound) {
		return textResult("Palestra não encontrada."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open talk: %w", err)
	}
	return textResult(RenderSession(sess)), nil
}

func (s *Server) handleCloseTalk(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SessionInput]) (*mcp.CallToolResultFor[any], error) {
	if err := s.sessions.Close(params.Arguments.SessionID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Session %s closed", params.Arguments.SessionID)), nil
}

func (s *Server) handleListSessions(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	sessions := s.sessions.ListSessions()
	if len(sessions) == 0 {
		return textResult("No open talks"), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d open talk(s):\n", len(sessions))
	for _, sum := range sessions {
		fmt.Fprintf(&b, "\n- %s: %s (%s), %s, opened %s",
			sum.ID, sum.Title, sum.Slug, trackCount(sum.Tracks), sum.OpenedAt.Format("15:04:05"))
	}
	return textResult(b.String()), nil
}

func (s *Server) handlePlayTrack(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[TrackInput]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if err := s.sessions.Play(args.SessionID, args.TrackID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Playing track %s", args.TrackID)), nil
}

func (s *Server) handlePauseTrack(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[TrackInput]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	if err := s.sessions.Pause(args.SessionID, args.TrackID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Paused track %s", args.TrackID)), nil
}

func (s *Server) handleSeekLine(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SeekLineInput]) (*mcp.CallToolResultFor[any], error) {
	args := params.Arguments
	track, err := s.sessions.Track(args.SessionID, args.TrackID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SeekLine(args.SessionID, args.TrackID, args.Line); err != nil {
		return nil, err
	}

	line := track.Lines[args.Line]
	if !line.Anchored() {
		return textResult(fmt.Sprintf("Line %d has no timestamp; playback unchanged", args.Line)), nil
	}
	return textResult(fmt.Sprintf("Track %s playing from [%s] %s", args.TrackID, line.Timestamp, line.Text)), nil
}

func (s *Server) handlePlaybackStatus(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SessionInput]) (*mcp.CallToolResultFor[any], error) {
	status, err := s.sessions.Status(params.Arguments.SessionID)
	if err != nil {
		return nil, err
	}
	return textResult(RenderStatus(status)), nil
}

func (s *Server) handleExportSession(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[SessionInput]) (*mcp.CallToolResultFor[any], error) {
	path, err := s.sessions.ExportSession(params.Arguments.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to export session: %w", err)
	}
	return textResult(fmt.Sprintf("Session exported to: %s", path)), nil
}

func (s *Server) handleRecentEvents(ctx context.Context, ss *mcp.ServerSession, params *mcp.CallToolParamsFor[EmptyInput]) (*mcp.CallToolResultFor[any], error) {
	if s.recorder == nil {
		return textResult("No events recorded"), nil
	}
	events := s.recorder.Events()
	if len(events) == 0 {
		return textResult("No events recorded"), nil
	}
	return textResult(RenderEvents(events)), nil
}

// SearchEvents returns a search.OnChange callback that publishes settled and
// failed searches on bus.
func SearchEvents(bus *feedback.EventBus) func(search.State) {
	return func(st search.State) {
		switch st.Phase {
		case search.PhaseSettled:
			bus.PublishSearchSettled(feedback.SearchSettledData{
				Query: st.Query,
				Total: st.Total,
				Page:  st.Page,
				Pages: st.Pages,
			})
		case search.PhaseFailed:
			bus.PublishSearchFailed(feedback.SearchFailedData{
				Query: st.Query,
				Error: st.Err.Error(),
			})
		}
	}
}
