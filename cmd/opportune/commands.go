package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	serveradapter "github.com/hylla/opportune/internal/adapters/server"
	servercommon "github.com/hylla/opportune/internal/adapters/server/common"
	"github.com/hylla/opportune/internal/app"
	"github.com/hylla/opportune/internal/config"
	"github.com/hylla/opportune/internal/tui"
	"github.com/spf13/cobra"
)

// withRuntime opens the runtime, runs fn and closes the runtime afterwards.
func (o *rootOptions) withRuntime(cmd *cobra.Command, quietConsole bool, fn func(*runtime) error) (err error) {
	rt, err := o.open(cmd, quietConsole)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close runtime: %w", closeErr)
		}
	}()
	rt.logger.Info("command flow start", "command", cmd.Name())
	if err := fn(rt); err != nil {
		rt.logger.Error("command flow failed", "command", cmd.Name(), "err", err)
		return err
	}
	rt.logger.Info("command flow complete", "command", cmd.Name())
	return nil
}

func newPathsCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data and log locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.LoadEnv()
			if err != nil {
				return err
			}
			appName, devMode, paths, err := o.resolve(cmd, env)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(o.stdout, "app: %s\n", appName)
			_, _ = fmt.Fprintf(o.stdout, "dev_mode: %t\n", devMode)
			_, _ = fmt.Fprintf(o.stdout, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(o.stdout, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(o.stdout, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(o.stdout, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newServeCommand(o *rootOptions) *cobra.Command {
	var (
		httpBind    string
		apiEndpoint string
		mcpEndpoint string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and MCP tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				bind := strings.TrimSpace(httpBind)
				if bind == "" {
					bind = rt.cfg.Server.HTTPBind
				}
				rt.logger.Info("serving", "http", bind, "api", apiEndpoint, "mcp", mcpEndpoint, "mcp_enabled", rt.cfg.Server.EnableMCP)
				return serveCommandRunner(cmd.Context(), serveradapter.Config{
					HTTPBind:        bind,
					APIEndpoint:     apiEndpoint,
					MCPEndpoint:     mcpEndpoint,
					ServerName:      rt.appName,
					ServerVersion:   version,
					DisableMCP:      !rt.cfg.Server.EnableMCP,
					ShutdownTimeout: rt.cfg.ShutdownTimeout(),
				}, serveradapter.Dependencies{Service: rt.adapter})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (defaults to server.http_bind)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "/api/v1", "HTTP API base endpoint")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "/mcp", "MCP streamable HTTP endpoint")
	return cmd
}

func newTUICommand(o *rootOptions) *cobra.Command {
	var salesManagerID string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the pipeline board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withRuntime(cmd, true, func(rt *runtime) error {
				m := tui.NewModel(
					rt.service,
					tui.WithColumns(rt.cfg.UI.StatusColumns()),
					tui.WithSalesManager(salesManagerID),
					tui.WithActor(o.actorID),
					tui.WithRevenue(rt.cfg.UI.ShowRevenue, tui.NewRevenueFormatter(rt.cfg.UI.Locale, rt.cfg.UI.Currency)),
				)
				rt.logger.Info("starting tui program loop")
				if _, err := programFactory(m).Run(); err != nil {
					return fmt.Errorf("run tui program: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&salesManagerID, "sales-manager", "", "only show this sales manager's opportunities")
	return cmd
}

func newCreateCommand(o *rootOptions) *cobra.Command {
	var req servercommon.CreateOpportunityRequest
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a Draft opportunity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				ctx, err := o.actorContext(cmd.Context())
				if err != nil {
					return err
				}
				if req.SalesManagerID == "" {
					req.SalesManagerID = o.actorID
				}
				opp, err := rt.adapter.CreateOpportunity(ctx, req)
				if err != nil {
					return err
				}
				if o.jsonOut {
					return writeJSON(o.stdout, opp)
				}
				_, _ = fmt.Fprintf(o.stdout, "created %s (%s)\n", opp.ID, opp.Status)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Title, "title", "", "title")
	f.StringVar(&req.Description, "description", "", "description")
	f.StringVar(&req.Customer.ID, "customer-id", "", "customer id")
	f.StringVar(&req.Customer.Name, "customer-name", "", "customer name")
	f.StringVar(&req.SalesManagerID, "sales-manager", "", "owning sales manager (defaults to --actor)")
	f.StringVar(&req.Priority, "priority", "medium", "low|medium|high|critical")
	f.Float64Var(&req.AnnualRecurringRevenue, "arr", 0, "annual recurring revenue")
	f.StringVar(&req.Geo.RegionID, "region-id", "", "region id")
	f.StringVar(&req.Geo.RegionName, "region-name", "", "region name")
	f.BoolVar(&req.Geo.RequiresPhysicalPresence, "onsite", false, "requires physical presence")
	f.BoolVar(&req.Geo.AllowsRemoteWork, "remote", false, "allows remote work")
	return cmd
}

func newListCommand(o *rootOptions) *cobra.Command {
	var req servercommon.ListRequest
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search opportunities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				items, err := rt.adapter.ListOpportunities(cmd.Context(), req)
				if err != nil {
					return err
				}
				if o.jsonOut {
					return writeJSON(o.stdout, items)
				}
				_, _ = fmt.Fprintln(o.stdout, opportunityTable(items, rt.revenueFormatter()))
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&req.Query, "query", "q", "", "substring of title, description or customer name")
	f.StringSliceVar(&req.Statuses, "status", nil, "status filter (repeatable)")
	f.StringSliceVar(&req.Priorities, "priority", nil, "priority filter (repeatable)")
	f.StringVar(&req.SalesManagerID, "sales-manager", "", "owning sales manager")
	f.StringVar(&req.CustomerID, "customer", "", "customer id")
	f.StringVar(&req.Filter, "filter", "", `AIP-160 filter, e.g. 'annual_recurring_revenue > 100000'`)
	f.IntVar(&req.Limit, "limit", 0, "maximum rows")
	return cmd
}

func newShowCommand(o *rootOptions) *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one opportunity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				opp, err := rt.adapter.GetOpportunity(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if o.jsonOut {
					return writeJSON(o.stdout, opp)
				}
				_, _ = fmt.Fprintln(o.stdout, tui.RenderOpportunity(opp, rt.revenueFormatter(), width))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&width, "width", 100, "wrap width")
	return cmd
}

func newSubmitCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit a complete Draft for matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				ctx, err := o.actorContext(cmd.Context())
				if err != nil {
					return err
				}
				opp, err := rt.adapter.SubmitOpportunity(ctx, args[0])
				if err != nil {
					return describeViolations(err)
				}
				return o.printTransition(opp.ID, opp.Status.Label(), opp)
			})
		},
	}
}

func newCancelCommand(o *rootOptions) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an opportunity; it can be reactivated for 90 days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				ctx, err := o.actorContext(cmd.Context())
				if err != nil {
					return err
				}
				opp, err := rt.adapter.CancelOpportunity(ctx, args[0], servercommon.CancelRequest{Reason: reason})
				if err != nil {
					return describeViolations(err)
				}
				return o.printTransition(opp.ID, opp.Status.Label(), opp)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func newReactivateCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reactivate <id>",
		Short: "Restore a cancelled opportunity to its previous status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				ctx, err := o.actorContext(cmd.Context())
				if err != nil {
					return err
				}
				opp, err := rt.adapter.ReactivateOpportunity(ctx, args[0])
				if err != nil {
					return err
				}
				return o.printTransition(opp.ID, opp.Status.Label(), opp)
			})
		},
	}
}

func newHistoryCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print the status and change ledgers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				history, err := rt.adapter.OpportunityHistory(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if o.jsonOut {
					return writeJSON(o.stdout, history)
				}
				_, _ = fmt.Fprintln(o.stdout, statusLedgerTable(history.Status))
				if len(history.Changes) > 0 {
					_, _ = fmt.Fprintln(o.stdout, changeLedgerTable(history.Changes))
				}
				return nil
			})
		},
	}
}

func newDashboardCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard [sales-manager-id]",
		Short: "Summarize a sales manager's pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			smID := o.actorID
			if len(args) == 1 {
				smID = args[0]
			}
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				dashboard, err := rt.adapter.Dashboard(cmd.Context(), smID)
				if err != nil {
					return err
				}
				if o.jsonOut {
					return writeJSON(o.stdout, dashboard)
				}
				_, _ = fmt.Fprintln(o.stdout, dashboardView(dashboard, rt.revenueFormatter()))
				return nil
			})
		},
	}
}

func newExportCommand(o *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every opportunity as a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				snap, err := rt.service.ExportSnapshot(cmd.Context())
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				encoded, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("encode snapshot json: %w", err)
				}
				encoded = append(encoded, '\n')
				if outPath == "-" {
					if _, err := o.stdout.Write(encoded); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func newImportCommand(o *rootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return fmt.Errorf("--in is required")
			}
			return o.withRuntime(cmd, false, func(rt *runtime) error {
				content, err := os.ReadFile(inPath)
				if err != nil {
					return fmt.Errorf("read import file: %w", err)
				}
				var snap app.Snapshot
				if err := json.Unmarshal(content, &snap); err != nil {
					return fmt.Errorf("decode snapshot json: %w", err)
				}
				if err := rt.service.ImportSnapshot(cmd.Context(), snap); err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, _ = fmt.Fprintf(o.stdout, "imported %d opportunities\n", len(snap.Opportunities))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

func (o *rootOptions) printTransition(id, status string, payload any) error {
	if o.jsonOut {
		return writeJSON(o.stdout, payload)
	}
	_, _ = fmt.Fprintf(o.stdout, "%s: %s\n", id, status)
	return nil
}
