package mcpapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/hylla/opportune/internal/adapters/server/common"
	"github.com/hylla/opportune/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

func actorOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("actor_id", mcp.Description("Acting user or agent id")),
		mcp.WithString("actor_type", mcp.Description("user|agent|system"), mcp.Enum("user", "agent", "system")),
	}
}

func newTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append([]mcp.ToolOption{mcp.WithDescription(description)}, opts...)
	return mcp.NewTool(name, opts...)
}

func jsonResult(name string, payload any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	return result, nil
}

// registerReadTools registers the query tools.
func registerReadTools(srv *mcpserver.MCPServer, svc common.OpportunityService) {
	srv.AddTool(
		newTool("opportune.list_opportunities", "Search opportunities. Empty arguments list everything, most recently updated first.",
			mcp.WithString("query", mcp.Description("Substring of title, description or customer name")),
			mcp.WithArray("statuses", mcp.Description("Status filter"), mcp.WithStringItems()),
			mcp.WithArray("priorities", mcp.Description("Priority filter"), mcp.WithStringItems()),
			mcp.WithString("sales_manager_id", mcp.Description("Owning sales manager")),
			mcp.WithString("customer_id", mcp.Description("Customer id")),
			mcp.WithString("filter", mcp.Description("AIP-160 filter expression, e.g. annual_recurring_revenue > 100000")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args common.ListRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			items, err := svc.ListOpportunities(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("list_opportunities", map[string]any{"items": items})
		},
	)

	srv.AddTool(
		newTool("opportune.get_opportunity", "Return one opportunity with its ledgers.",
			mcp.WithString("opportunity_id", mcp.Required(), mcp.Description("Opportunity id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("opportunity_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			opp, err := svc.GetOpportunity(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_opportunity", opp)
		},
	)

	srv.AddTool(
		newTool("opportune.get_history", "Return the status and change ledgers of one opportunity, oldest first.",
			mcp.WithString("opportunity_id", mcp.Required(), mcp.Description("Opportunity id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("opportunity_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			history, err := svc.OpportunityHistory(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("get_history", history)
		},
	)

	srv.AddTool(
		newTool("opportune.matching_criteria", "Prepare the criteria handed to the external matching engine.",
			mcp.WithString("opportunity_id", mcp.Required(), mcp.Description("Opportunity id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			id, err := req.RequireString("opportunity_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			criteria, err := svc.MatchingCriteria(ctx, id)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("matching_criteria", criteria)
		},
	)

	srv.AddTool(
		newTool("opportune.dashboard", "Summarize one sales manager's pipeline and the opportunities needing attention.",
			mcp.WithString("sales_manager_id", mcp.Required(), mcp.Description("Sales manager id")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			smID, err := req.RequireString("sales_manager_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			dashboard, err := svc.Dashboard(ctx, smID)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("dashboard", dashboard)
		},
	)
}

// registerLifecycleTools registers the mutating tools.
func registerLifecycleTools(srv *mcpserver.MCPServer, svc common.OpportunityService) {
	srv.AddTool(
		newTool("opportune.create_opportunity", "Create a Draft opportunity.",
			append([]mcp.ToolOption{
				mcp.WithString("title", mcp.Required(), mcp.Description("Title")),
				mcp.WithObject("customer", mcp.Required(), mcp.Description(`Customer reference {"id","name"}`)),
				mcp.WithString("sales_manager_id", mcp.Required(), mcp.Description("Owning sales manager")),
				mcp.WithString("description", mcp.Required(), mcp.Description("Description")),
				mcp.WithString("priority", mcp.Description("low|medium|high|critical"), mcp.Enum("low", "medium", "high", "critical")),
				mcp.WithNumber("annual_recurring_revenue", mcp.Description("Annual recurring revenue")),
				mcp.WithObject("geo", mcp.Required(), mcp.Description(`Geo requirement {"region_id","region_name","requires_physical_presence","allows_remote_work"}`)),
			}, actorOptions()...)...,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ctx, err := actorContext(ctx, req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			var args common.CreateOpportunityRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			if strings.TrimSpace(args.Title) == "" {
				return mcp.NewToolResultError(`invalid_request: required argument "title" not found`), nil
			}
			opp, err := svc.CreateOpportunity(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("create_opportunity", opp)
		},
	)

	srv.AddTool(
		newTool("opportune.update_opportunity", "Apply field updates as one unit. A reason is required once the opportunity left Draft.",
			append([]mcp.ToolOption{
				mcp.WithString("opportunity_id", mcp.Required(), mcp.Description("Opportunity id")),
				mcp.WithString("title", mcp.Description("New title")),
				mcp.WithString("description", mcp.Description("New description")),
				mcp.WithString("priority", mcp.Description("New priority"), mcp.Enum("low", "medium", "high", "critical")),
				mcp.WithNumber("annual_recurring_revenue", mcp.Description("New annual recurring revenue")),
				mcp.WithObject("geo", mcp.Description("New geo requirement")),
				mcp.WithObject("customer", mcp.Description("New customer reference")),
				mcp.WithString("reason", mcp.Description("Why the change is made")),
			}, actorOptions()...)...,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ctx, err := actorContext(ctx, req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			id, err := req.RequireString("opportunity_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			var args common.UpdateRequest
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			opp, err := svc.UpdateOpportunity(ctx, id, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("update_opportunity", opp)
		},
	)

	srv.AddTool(
		newTool("opportune.submit_opportunity", "Submit a complete Draft for matching. Fails listing every unmet requirement.",
			append([]mcp.ToolOption{
				mcp.WithString("opportunity_id", mcp.Required(), mcp.Description("Opportunity id")),
			}, actorOptions()...)...,
		),
		idTool("submit_opportunity", svc.SubmitOpportunity),
	)

	srv.AddTool(
		newTool("opportune.cancel_opportunity", "Cancel an opportunity. It can be reactivated for 90 days.",
			append([]mcp.ToolOption{
				mcp.WithString("opportunity_id", mcp.Required(), mcp.Description("Opportunity id")),
				mcp.WithString("reason", mcp.Required(), mcp.Description("Cancellation reason")),
			}, actorOptions()...)...,
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			ctx, err := actorContext(ctx, req)
			if err != nil {
				return toolResultFromError(err), nil
			}
			id, err := req.RequireString("opportunity_id")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			opp, err := svc.CancelOpportunity(ctx, id, common.CancelRequest{Reason: req.GetString("reason", "")})
			if err != nil {
				return toolResultFromError(err), nil
			}
			return jsonResult("cancel_opportunity", opp)
		},
	)

	srv.AddTool(
		newTool("opportune.reactivate_opportunity", "Restore a cancelled opportunity to its previous status before the deadline.",
			append([]mcp.ToolOption{
				mcp.WithString("opportunity_id", mcp.Required(), mcp.Description("Opportunity id")),
			}, actorOptions()...)...,
		),
		idTool("reactivate_opportunity", svc.ReactivateOpportunity),
	)
}

// idTool adapts one id-only lifecycle operation into a tool handler.
func idTool(name string, op func(context.Context, string) (domain.Opportunity, error)) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, err := actorContext(ctx, req)
		if err != nil {
			return toolResultFromError(err), nil
		}
		id, err := req.RequireString("opportunity_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		opp, err := op(ctx, id)
		if err != nil {
			return toolResultFromError(err), nil
		}
		return jsonResult(name, opp)
	}
}
