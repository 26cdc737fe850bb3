// Package cmd implements the CLI commands for calendar-mcp.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/thegrumpylion/calendar-mcp/internal/auth"
	"github.com/thegrumpylion/calendar-mcp/internal/calendar"
	"github.com/thegrumpylion/calendar-mcp/internal/logging"
	"github.com/thegrumpylion/calendar-mcp/internal/server"
)

const defaultRequestTimeout = 30 * time.Second

var (
	configDir       string
	credentialsFile string
	logLevel        string
	logFormat       string
	version         = "dev"
)

// SetVersion sets the version string used in the CLI and MCP server.
func SetVersion(v string) {
	version = v
}

func newManager() (*auth.Manager, error) {
	return auth.NewManager(configDir, credentialsFile)
}

// setupLogging installs the process logger. Logs go to stderr; stdout carries
// the MCP stream.
func setupLogging() error {
	logger, err := logging.New(os.Stderr, logging.Options{Level: logLevel, Format: logFormat})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "calendar-mcp",
		Short: "Google Calendar MCP server",
		Long: `calendar-mcp provides a Model Context Protocol (MCP) server for Google Calendar.

Calendars can be referred to by ID or by display name. Errors from Google are
translated into actionable messages (re-authentication, quota project, etc).

Setup:
  1. Download OAuth credentials from https://console.cloud.google.com/apis/credentials
  2. Place the file at ~/.config/calendar-mcp/credentials.json (or use --credentials)
  3. Add accounts: calendar-mcp auth add <name>
  4. Run the server: calendar-mcp serve`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}

	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default: $"+auth.EnvConfigDir+" or $XDG_CONFIG_HOME/calendar-mcp)")
	root.PersistentFlags().StringVar(&credentialsFile, "credentials", "", "path to Google OAuth credentials.json (default: <config-dir>/credentials.json)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(
		newAuthCmd(),
		newServeCmd(),
	)

	return root
}

// --- auth commands ---

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage Google account authentication",
	}

	cmd.AddCommand(
		newAuthAddCmd(),
		newAuthListCmd(),
		newAuthRemoveCmd(),
	)

	return cmd
}

func newAuthAddCmd() *cobra.Command {
	var scopes []string

	cmd := &cobra.Command{
		Use:   "add <account-name>",
		Short: "Add a Google account via OAuth browser flow",
		Long: `Authenticate a Google account and store the token under the given name.
The name is your own label (e.g. "personal", "work").

Requires credentials.json from Google Cloud Console at the default
path (~/.config/calendar-mcp/credentials.json) or via --credentials.

By default the Calendar scope is requested. Use --scopes to override.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}

			name := args[0]

			requested := calendar.AccountScopes()
			if len(scopes) > 0 {
				requested = scopes
			}

			if err := mgr.Authenticate(cmd.Context(), name, requested); err != nil {
				return err
			}

			recordEmail(cmd.Context(), mgr, name)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&scopes, "scopes", nil, "specific OAuth scopes to request (default: Calendar scope)")

	return cmd
}

// recordEmail stores the address of the account's primary calendar next to
// its token. Failure only costs the label in 'auth list'.
func recordEmail(ctx context.Context, mgr *auth.Manager, name string) {
	svc, err := calendar.AuthServices(mgr)(ctx, name)
	if err != nil {
		slog.Warn("could not create Calendar service to look up account email", logging.Err(err))
		return
	}
	entry, err := svc.CalendarList.Get(calendar.PrimaryCalendar).Fields("id").Context(ctx).Do()
	if err != nil {
		slog.Warn("could not read primary calendar", logging.Err(err))
		return
	}
	if err := mgr.SetEmail(name, entry.Id); err != nil {
		slog.Warn("could not store account email", logging.Err(err))
	}
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}

			accounts := mgr.ListAccounts()
			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, "No accounts configured.")
				return nil
			}

			names := make([]string, 0, len(accounts))
			for name := range accounts {
				names = append(names, name)
			}
			slices.Sort(names)

			fmt.Fprintln(out, "Configured accounts:")
			for _, name := range names {
				if email := accounts[name]; email != "" {
					fmt.Fprintf(out, "  - %s (%s)\n", name, email)
				} else {
					fmt.Fprintf(out, "  - %s\n", name)
				}
			}
			return nil
		},
	}
}

func newAuthRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <account-name>",
		Short: "Remove a stored account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			if err := mgr.RemoveAccount(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %q removed.\n", args[0])
			return nil
		},
	}
}

// --- MCP server command ---

// toolFilterFlags holds the CLI flags for tool filtering.
type toolFilterFlags struct {
	readOnly bool
	enable   []string
	disable  []string
}

// addToolFilterFlags adds --read-only, --enable, and --disable flags to a command.
func addToolFilterFlags(cmd *cobra.Command, f *toolFilterFlags) {
	cmd.Flags().BoolVar(&f.readOnly, "read-only", false, "only expose read-only tools (no deletions)")
	cmd.Flags().StringSliceVar(&f.enable, "enable", nil, "whitelist of tool names to expose (comma-separated)")
	cmd.Flags().StringSliceVar(&f.disable, "disable", nil, "blacklist of tool names to hide (comma-separated)")
	cmd.MarkFlagsMutuallyExclusive("enable", "disable")
}

// toToolFilter converts the CLI flags to a server.ToolFilter.
func (f *toolFilterFlags) toToolFilter() server.ToolFilter {
	return server.ToolFilter{
		ReadOnly: f.readOnly,
		Enable:   f.enable,
		Disable:  f.disable,
	}
}

// serveFlags holds the runtime flags of the serve command.
type serveFlags struct {
	filter         toolFilterFlags
	requestTimeout time.Duration
	metricsAddr    string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Google Calendar MCP server (stdio)",
		Long: `Starts an MCP server over stdio with Calendar tools:
  list_accounts, list_calendars, list_events, search_events, get_event,
  delete_event, query_free_busy, get_current_time, list_colors,
  list_calendar_sharing.

Use --read-only to expose only read-only tools.
Use --enable or --disable for granular tool control.
Use --metrics-addr to expose Prometheus metrics (e.g. localhost:9090).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}
	addToolFilterFlags(cmd, &flags.filter)
	cmd.Flags().DurationVar(&flags.requestTimeout, "request-timeout", defaultRequestTimeout, "deadline for each tool call (0 disables)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics and /healthz on (disabled when empty)")
	return cmd
}

func runServe(ctx context.Context, flags serveFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	mgr, err := newManager()
	if err != nil {
		return err
	}

	srv := server.NewServer(&mcp.Implementation{
		Name:    "calendar-mcp",
		Version: version,
	}, nil)
	srv.SetLogger(logger)
	srv.SetRequestTimeout(flags.requestTimeout)

	if flags.metricsAddr != "" {
		ms, err := startMetrics(srv, flags.metricsAddr)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), server.DefaultShutdownTimeout)
			defer cancel()
			if err := ms.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	calendar.RegisterTools(srv, mgr)

	if err := srv.ApplyFilter(flags.filter.toToolFilter()); err != nil {
		return err
	}

	logger.Info("starting calendar MCP server",
		"version", version,
		"tools", len(srv.Tools()),
		"accounts", len(mgr.ListAccounts()))

	err = srv.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startMetrics registers tool metrics on a dedicated registry and serves it
// in the background.
func startMetrics(srv *server.Server, addr string) (*server.MetricsServer, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := server.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	srv.SetMetrics(m)

	ms, err := server.NewMetricsServer(addr, reg)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := ms.Start(); err != nil {
			slog.Error("metrics server failed", logging.Err(err))
		}
	}()
	return ms, nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
