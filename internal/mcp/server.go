package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
	"github.com/fyrsmithlabs/voxnotes/internal/notes"
	"github.com/fyrsmithlabs/voxnotes/internal/ondevice"
	"github.com/fyrsmithlabs/voxnotes/internal/store"
)

// NoteProcessor runs typed notes through the capture pipeline.
type NoteProcessor interface {
	ProcessText(ctx context.Context, text string) (notes.Outcome, error)
}

// EntityStore is the store surface the tools use.
type EntityStore interface {
	List(ctx context.Context, f store.Filter) ([]entity.Entity, error)
	QueryUpcoming(ctx context.Context, limit int) ([]entity.Entity, error)
	Search(ctx context.Context, query string, limit int) ([]entity.Entity, error)
	MarkComplete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (entity.Entity, error)
}

// ModelStatus reports on-device model state.
type ModelStatus interface {
	Status() ondevice.Status
}

// Server is an MCP server over the voxnotes pipeline.
type Server struct {
	mcp          *mcp.Server
	notes        NoteProcessor
	store        EntityStore
	model        ModelStatus
	toolRegistry *ToolRegistry
	metrics      *Metrics
	logger       *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "voxnotes")
	Name string
	// Version is the server version (default: "dev")
	Version string
	Logger  *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "voxnotes",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates the server and registers its tools. model may be nil;
// model_status then reports that no model is configured.
func NewServer(cfg *Config, np NoteProcessor, st EntityStore, model ModelStatus) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if np == nil {
		return nil, errors.New("note processor is required")
	}
	if st == nil {
		return nil, errors.New("entity store is required")
	}

	s := &Server{
		mcp:          mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		notes:        np,
		store:        st,
		model:        model,
		toolRegistry: NewToolRegistry(),
		metrics:      NewMetrics(cfg.Logger),
		logger:       cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Registry returns the tool registry.
func (s *Server) Registry() *ToolRegistry {
	return s.toolRegistry
}

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves on t.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect starts a session on t without blocking.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
