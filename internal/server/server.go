// Package server provides a wrapper around the MCP SDK server that captures
// tool metadata at registration time, enabling runtime filtering by read-only
// status, whitelists, and blacklists. Every tool registered through AddTool
// runs under a per-call deadline, is logged once on completion and is counted
// in the server's Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/thegrumpylion/calendar-mcp/internal/apierr"
	"github.com/thegrumpylion/calendar-mcp/internal/logging"
)

// BoolPtr returns a pointer to a bool value. Useful for MCP ToolAnnotations
// fields like DestructiveHint and OpenWorldHint which are *bool.
func BoolPtr(v bool) *bool { return &v }

// ToolInfo describes a registered tool for filtering purposes.
type ToolInfo struct {
	Name     string
	ReadOnly bool
}

// Server wraps an mcp.Server to capture tool metadata at registration time.
// Use AddTool to register tools; it records each tool's name and read-only
// status automatically. After all tools are registered, call ApplyFilter to
// remove tools that don't match the desired filter.
type Server struct {
	*mcp.Server
	tools   []ToolInfo
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration
}

// NewServer creates a new Server wrapper around an mcp.Server.
func NewServer(impl *mcp.Implementation, opts *mcp.ServerOptions) *Server {
	return &Server{
		Server: mcp.NewServer(impl, opts),
		logger: slog.Default(),
	}
}

// SetLogger sets the logger used for tool call records.
func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetMetrics sets the metrics sink. A nil Metrics disables recording.
func (s *Server) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetRequestTimeout bounds every tool call. Zero means no deadline beyond the
// one the client's context carries.
func (s *Server) SetRequestTimeout(d time.Duration) {
	s.timeout = d
}

// Tools returns the metadata for the tools currently exposed.
func (s *Server) Tools() []ToolInfo {
	return s.tools
}

// AddTool registers a typed tool on the server and records its metadata.
// This is a free generic function because Go does not allow generic methods
// on types; the MCP SDK uses the same pattern for mcp.AddTool.
func AddTool[In, Out any](s *Server, t *mcp.Tool, h mcp.ToolHandlerFor[In, Out]) {
	s.tools = append(s.tools, ToolInfo{
		Name:     t.Name,
		ReadOnly: t.Annotations != nil && t.Annotations.ReadOnlyHint,
	})
	mcp.AddTool(s.Server, t, instrument(s, t.Name, h))
}

// instrument wraps h with the call deadline, the completion log line and
// metrics. Errors leaving h are passed through apierr.Classify, so whatever
// reaches the client is a classified error.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		start := time.Now()
		res, out, err := h(ctx, req, in)
		elapsed := time.Since(start)

		status := logging.StatusSuccess
		logger := logging.WithTool(s.logger, name)
		var attrs []any
		if err != nil {
			cerr := apierr.Classify(err)
			attrs = append(attrs, logging.Category(string(cerr.Category)), logging.Err(err))
			err = cerr
			status = logging.StatusError
			s.metrics.RecordClassifiedError(string(cerr.Category))
		} else if res != nil && res.IsError {
			status = logging.StatusError
		}
		attrs = append(attrs, logging.Status(status), logging.Duration(elapsed))

		s.metrics.RecordToolInvocation(name, status, elapsed)
		if status == logging.StatusError {
			logger.Warn("tool call failed", attrs...)
		} else {
			logger.Debug("tool call completed", attrs...)
		}
		return res, out, err
	}
}

// ToolFilter configures which tools are exposed by an MCP server.
type ToolFilter struct {
	// ReadOnly limits the server to read-only tools.
	ReadOnly bool
	// Enable is a whitelist of tool names to expose. Mutually exclusive with Disable.
	Enable []string
	// Disable is a blacklist of tool names to hide. Mutually exclusive with Enable.
	Disable []string
}

// ApplyFilter removes tools from the server based on the filter configuration.
// Returns an error if the filter is invalid (e.g. enable and disable both set,
// or referencing unknown tool names).
func (s *Server) ApplyFilter(filter ToolFilter) error {
	if len(filter.Enable) > 0 && len(filter.Disable) > 0 {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	// Build the base set: all tools or read-only only.
	baseSet := make(map[string]bool, len(s.tools))
	allTools := make(map[string]bool, len(s.tools))
	for _, t := range s.tools {
		allTools[t.Name] = true
		if !filter.ReadOnly || t.ReadOnly {
			baseSet[t.Name] = true
		}
	}

	check := func(names []string) error {
		for _, name := range names {
			if !baseSet[name] {
				if allTools[name] && filter.ReadOnly {
					return fmt.Errorf("tool %q is not a read-only tool", name)
				}
				return fmt.Errorf("unknown tool %q", name)
			}
		}
		return nil
	}
	if err := check(filter.Enable); err != nil {
		return err
	}
	if err := check(filter.Disable); err != nil {
		return err
	}

	var remove []string
	for _, t := range s.tools {
		switch {
		case !baseSet[t.Name]:
			remove = append(remove, t.Name)
		case len(filter.Enable) > 0 && !slices.Contains(filter.Enable, t.Name):
			remove = append(remove, t.Name)
		case slices.Contains(filter.Disable, t.Name):
			remove = append(remove, t.Name)
		}
	}
	if len(remove) > 0 {
		s.RemoveTools(remove...)
		s.tools = slices.DeleteFunc(s.tools, func(t ToolInfo) bool {
			return slices.Contains(remove, t.Name)
		})
	}
	return nil
}
