package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/wmbridge"
	"github.com/aretw0/wmbridge/pkg/domain"
	"github.com/aretw0/wmbridge/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// InputLinkURI is the resource holding the live input tree.
const InputLinkURI = "wm://input-link"

const agentURIPrefix = "wm://agents/"

// Bridge is the part of *wmbridge.Bridge exposed over MCP.
type Bridge interface {
	Agent() string
	Snapshot() *domain.Snapshot
	Entities(kind domain.EntityKind) []domain.Handle
	Link(kind domain.EntityKind, src, dest domain.Handle) error
	Stop(ctx context.Context) error
	Stats() wmbridge.Stats
}

// EntitiesResult is the output of list_entities.
type EntitiesResult struct {
	Kind    domain.EntityKind `json:"kind" jsonschema_description:"Entity kind"`
	Handles []domain.Handle   `json:"handles" jsonschema_description:"Tracked handles, sorted"`
}

// EntitiesArgs are the arguments of list_entities.
type EntitiesArgs struct {
	Kind string `json:"kind"`
}

// LinkArgs are the arguments of link_entities.
type LinkArgs struct {
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// LinkResult is the output of link_entities.
type LinkResult struct {
	Status string `json:"status" jsonschema_description:"queued: the link applies at the next input phase"`
}

// Server exposes a bridge's working memory and controls as an MCP server.
type Server struct {
	bridge    Bridge
	store     ports.SnapshotStore
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithSnapshotStore exposes persisted snapshots as wm://agents/{agent} resources.
func WithSnapshotStore(store ports.SnapshotStore) Option {
	return func(s *Server) { s.store = store }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new MCP Server instance.
func NewServer(bridge Bridge, opts ...Option) *Server {
	s := &Server{
		bridge: bridge,
		logger: slog.Default(),
		mcpServer: server.NewMCPServer("wmbridge-mcp", strings.TrimSpace(wmbridge.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithRecovery(),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: get_working_memory
	s.mcpServer.AddTool(mcp.NewTool("get_working_memory",
		mcp.WithDescription("Read the input tree as of the last input phase."),
		mcp.WithString("path", mcp.Description("Dotted path of a subtree, e.g. objects.obj7.pose (optional)")),
		mcp.WithString("format", mcp.Description("tree (default) or flat"), mcp.Enum("tree", "flat")),
	), s.handleGetWorkingMemory)

	// TOOL: list_entities
	s.mcpServer.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List the handles of tracked objects or faces."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("object or face"), mcp.Enum("object", "face")),
		mcp.WithOutputSchema[EntitiesResult](),
	), mcp.NewStructuredToolHandler(s.handleListEntities))

	// TOOL: link_entities
	s.mcpServer.AddTool(mcp.NewTool("link_entities",
		mcp.WithDescription("Redirect a source handle onto a destination handle from the next input phase on."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("object or face"), mcp.Enum("object", "face")),
		mcp.WithString("source", mcp.Required(), mcp.Description("Handle to redirect, e.g. obj7")),
		mcp.WithString("destination", mcp.Required(), mcp.Description("Handle it becomes, e.g. obj1")),
		mcp.WithOutputSchema[LinkResult](),
	), mcp.NewStructuredToolHandler(s.handleLinkEntities))

	// TOOL: stop_actions
	s.mcpServer.AddTool(mcp.NewTool("stop_actions",
		mcp.WithDescription("Abort every pending robot action."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := s.bridge.Stop(ctx); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stop failed: %v", err)), nil
		}
		return mcp.NewToolResultText("stopped"), nil
	})

	// TOOL: get_stats
	s.mcpServer.AddTool(mcp.NewTool("get_stats",
		mcp.WithDescription("Report cycle, entity, pending action and write counters."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jsonBytes, _ := json.Marshal(s.bridge.Stats())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func (s *Server) handleGetWorkingMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := s.bridge.Snapshot()
	if snap == nil {
		return mcp.NewToolResultError("no input phase has run yet"), nil
	}

	var out any = snap
	if path := request.GetString("path", ""); path != "" {
		node := snap.Lookup(path)
		if node == nil {
			return mcp.NewToolResultError(fmt.Sprintf("no attribute at %q", path)), nil
		}
		out = node
	}
	if request.GetString("format", "tree") == "flat" {
		out = snap.Flatten()
	}

	jsonBytes, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode working memory: %w", err)
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListEntities(ctx context.Context, request mcp.CallToolRequest, args EntitiesArgs) (EntitiesResult, error) {
	kind, err := domain.ParseEntityKind(args.Kind)
	if err != nil {
		return EntitiesResult{}, err
	}
	handles := s.bridge.Entities(kind)
	if handles == nil {
		handles = []domain.Handle{}
	}
	return EntitiesResult{Kind: kind, Handles: handles}, nil
}

func (s *Server) handleLinkEntities(ctx context.Context, request mcp.CallToolRequest, args LinkArgs) (LinkResult, error) {
	kind, err := domain.ParseEntityKind(args.Kind)
	if err != nil {
		return LinkResult{}, err
	}
	if err := s.bridge.Link(kind, domain.Handle(args.Source), domain.Handle(args.Destination)); err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			s.logger.Warn("MCP link_entities: queue full", "source", args.Source, "destination", args.Destination)
		}
		return LinkResult{}, fmt.Errorf("link failed: %w", err)
	}
	return LinkResult{Status: "queued"}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: wm://input-link
	s.mcpServer.AddResource(mcp.NewResource(InputLinkURI, "Input link",
		mcp.WithResourceDescription("The bridge's input tree as of the last input phase"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		snap := s.bridge.Snapshot()
		if snap == nil {
			return nil, fmt.Errorf("no input phase has run yet")
		}
		return jsonResource(InputLinkURI, snap)
	})

	if s.store == nil {
		return
	}

	// EXPOSE: wm://agents/{agent}
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(agentURIPrefix+"{agent}", "Stored snapshot",
		mcp.WithTemplateDescription("The latest persisted input tree of an agent"),
		mcp.WithTemplateMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		agent := strings.TrimPrefix(request.Params.URI, agentURIPrefix)
		snap, err := s.store.Load(ctx, agent)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot of %q: %w", agent, err)
		}
		return jsonResource(request.Params.URI, snap)
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
