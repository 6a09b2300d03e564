package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

const maxToolLimit = 100

var errModelUnconfigured = errors.New("on-device model not configured")

// addTool registers h with the MCP server and the tool registry, wrapping
// it with metrics and user-facing error messages.
func addTool[In, Out any](s *Server, tool *mcp.Tool, category ToolCategory, keywords []string, h mcp.ToolHandlerFor[In, Out]) {
	s.toolRegistry.Register(&ToolMetadata{
		Name:        tool.Name,
		Description: tool.Description,
		Category:    category,
		Keywords:    keywords,
	})
	name := tool.Name
	mcp.AddTool(s.mcp, tool, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		res, out, err := h(ctx, req, in)
		s.metrics.DecrementActive(ctx, name)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
			var zero Out
			return nil, zero, toolError(err)
		}
		return res, out, nil
	})
}

func toolError(err error) error {
	var ve validationError
	if errors.As(err, &ve) {
		return err
	}
	if errors.Is(err, errModelUnconfigured) {
		return errors.New("The on-device model is not configured.")
	}
	return fmt.Errorf("%s (%v)", notes.UserMessage(err), err)
}

type validationError string

func (e validationError) Error() string { return string(e) }

func clampLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, maxToolLimit)
}

// entityView is the wire shape of an entity in tool output.
type entityView struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	VoiceNoteID string `json:"voice_note_id,omitempty"`
	Details     any    `json:"details,omitempty" jsonschema:"Type-specific fields such as due date or shopping items"`
}

func viewOf(e entity.Entity) entityView {
	return entityView{
		ID:          e.ID,
		Type:        string(e.Type),
		Content:     e.Content,
		Status:      string(e.Status),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		VoiceNoteID: e.VoiceNoteID,
		Details:     e.Details(),
	}
}

func viewsOf(es []entity.Entity) []entityView {
	out := make([]entityView, 0, len(es))
	for _, e := range es {
		out = append(out, viewOf(e))
	}
	return out
}

func summarize(es []entityView) string {
	if len(es) == 0 {
		return "No matching items."
	}
	var b strings.Builder
	for _, e := range es {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", e.Type, e.Content, e.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Server) registerTools() {
	s.registerCaptureTools()
	s.registerEntityTools()
	s.registerModelTools()
	s.registerSearchTools()
}

// ===== CAPTURE =====

type noteCaptureInput struct {
	Text string `json:"text" jsonschema:"Transcript or typed note, at least 3 characters"`
}

type completionView struct {
	EntityID   string  `json:"entity_id"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

type noteCaptureOutput struct {
	VoiceNoteID string           `json:"voice_note_id"`
	Entities    []entityView     `json:"entities"`
	Completed   []completionView `json:"completed"`
	Suggested   []completionView `json:"suggested"`
	Summary     string           `json:"summary"`
	Strategy    string           `json:"strategy"`
}

func completionViews(ms []entity.CompletionMatch) []completionView {
	out := make([]completionView, 0, len(ms))
	for _, m := range ms {
		out = append(out, completionView{EntityID: m.EntityID, Confidence: m.Confidence, Reason: m.Reason})
	}
	return out
}

func (s *Server) registerCaptureTools() {
	addTool(s, &mcp.Tool{
		Name:        "note_capture",
		Description: "Capture a note from text. Extracts todos, reminders, events, shopping items and other entities, saves them, and marks existing items complete when the note says they are done.",
	}, CategoryCapture, []string{"transcript", "voice", "add", "create"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in noteCaptureInput) (*mcp.CallToolResult, noteCaptureOutput, error) {
			out, err := s.notes.ProcessText(ctx, in.Text)
			if err != nil {
				return nil, noteCaptureOutput{}, err
			}
			res := noteCaptureOutput{
				VoiceNoteID: out.VoiceNote.ID,
				Entities:    viewsOf(out.Entities),
				Completed:   completionViews(out.Completed),
				Suggested:   completionViews(out.Suggested),
				Summary:     out.Summary,
				Strategy:    string(out.Strategy),
			}
			text := fmt.Sprintf("%s\nSaved %d item(s), completed %d.", out.Summary, len(res.Entities), len(res.Completed))
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, res, nil
		})
}

// ===== ENTITIES =====

type entityListInput struct {
	Type   string `json:"type,omitempty" jsonschema:"Filter by type: note, journal, todo, reminder, event, shopping, person, idea"`
	Status string `json:"status,omitempty" jsonschema:"Filter by status: active, completed, cancelled"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum results (default 100)"`
}

type entityListOutput struct {
	Entities []entityView `json:"entities"`
	Count    int          `json:"count"`
}

type entityUpcomingInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum results (default 10)"`
}

type entitySearchInput struct {
	Query string `json:"query" jsonschema:"Text to find in entity content or the original transcript"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum results (default 50)"`
}

type entityCompleteInput struct {
	ID string `json:"id" jsonschema:"Entity ID to mark completed"`
}

type entityCompleteOutput struct {
	Entity entityView `json:"entity"`
}

func listResult(es []entity.Entity) (*mcp.CallToolResult, entityListOutput, error) {
	views := viewsOf(es)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: summarize(views)}},
	}, entityListOutput{Entities: views, Count: len(views)}, nil
}

func (s *Server) registerEntityTools() {
	addTool(s, &mcp.Tool{
		Name:        "entity_list",
		Description: "List saved entities, newest first, optionally filtered by type and status.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, CategoryEntities, []string{"todos", "reminders", "shopping", "list"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in entityListInput) (*mcp.CallToolResult, entityListOutput, error) {
			f := store.Filter{Limit: clampLimit(in.Limit, store.DefaultListLimit)}
			if in.Type != "" {
				t, err := entity.ParseType(in.Type)
				if err != nil {
					return nil, entityListOutput{}, validationError(err.Error())
				}
				f.Type = t
			}
			switch st := entity.Status(in.Status); st {
			case "", entity.StatusActive, entity.StatusCompleted, entity.StatusCancelled:
				f.Status = st
			default:
				return nil, entityListOutput{}, validationError("unknown status " + in.Status)
			}
			es, err := s.store.List(ctx, f)
			if err != nil {
				return nil, entityListOutput{}, err
			}
			return listResult(es)
		})

	addTool(s, &mcp.Tool{
		Name:        "entity_upcoming",
		Description: "List active todos, reminders and events ordered by when they are due.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, CategoryEntities, []string{"due", "agenda", "calendar", "schedule"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in entityUpcomingInput) (*mcp.CallToolResult, entityListOutput, error) {
			es, err := s.store.QueryUpcoming(ctx, clampLimit(in.Limit, store.DefaultUpcomingLimit))
			if err != nil {
				return nil, entityListOutput{}, err
			}
			return listResult(es)
		})

	addTool(s, &mcp.Tool{
		Name:        "entity_search",
		Description: "Search entities by text in their content or the transcript they came from.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, CategoryEntities, []string{"find", "lookup"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in entitySearchInput) (*mcp.CallToolResult, entityListOutput, error) {
			if strings.TrimSpace(in.Query) == "" {
				return nil, entityListOutput{}, validationError("query is required")
			}
			es, err := s.store.Search(ctx, in.Query, clampLimit(in.Limit, store.DefaultSearchLimit))
			if err != nil {
				return nil, entityListOutput{}, err
			}
			return listResult(es)
		})

	addTool(s, &mcp.Tool{
		Name:        "entity_complete",
		Description: "Mark an active entity completed.",
	}, CategoryEntities, []string{"done", "finish", "check off"},
		func(ctx context.Context, _ *mcp.CallToolRequest, in entityCompleteInput) (*mcp.CallToolResult, entityCompleteOutput, error) {
			if in.ID == "" {
				return nil, entityCompleteOutput{}, validationError("id is required")
			}
			if err := s.store.MarkComplete(ctx, in.ID); err != nil {
				return nil, entityCompleteOutput{}, err
			}
			e, err := s.store.Get(ctx, in.ID)
			if err != nil {
				return nil, entityCompleteOutput{}, err
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Completed: %s", e.Content)}},
			}, entityCompleteOutput{Entity: viewOf(e)}, nil
		})
}

// ===== MODEL =====

type modelStatusInput struct{}

func (s *Server) registerModelTools() {
	addTool(s, &mcp.Tool{
		Name:        "model_status",
		Description: "Report whether the on-device extraction model is downloaded and loaded.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, CategoryModel, []string{"llm", "download", "ready"},
		func(ctx context.Context, _ *mcp.CallToolRequest, _ modelStatusInput) (*mcp.CallToolResult, ondevice.Status, error) {
			if s.model == nil {
				return nil, ondevice.Status{}, errModelUnconfigured
			}
			st := s.model.Status()
			var text string
			switch {
			case st.Ready:
				text = "Model ready."
			case st.Initializing:
				text = fmt.Sprintf("Model loading (%.0f%% downloaded).", st.DownloadProgress*100)
			case st.Error != "":
				text = "Model failed: " + st.Error
			default:
				text = "Model not initialized."
			}
			return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}, st, nil
		})
}
