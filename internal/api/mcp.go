package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gildigital/autoapply/internal/profile"
	"github.com/gildigital/autoapply/internal/queue"
	"github.com/gildigital/autoapply/internal/storage"
)

// MCPDeps holds dependencies for the operator MCP server. It rides on the
// same managers as the HTTP surface.
type MCPDeps struct {
	Store    *storage.Store
	Profiles *profile.Manager
	Queue    *queue.Manager
	Worker   WorkerController
}

// NewMCPServer exposes the queue and worker as MCP tools so an operator
// agent can inspect and nudge the pipeline over stdio.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"autoapply",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("autoapply — job application queue: inspect status, enqueue tracked jobs, resubmit failures, and control the dispatch worker."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("queue_status",
			mcp.WithDescription("Report a user's queue counts, applications submitted today, and remaining daily slots."),
			mcp.WithNumber("user_id", mcp.Description("User id"), mcp.Required()),
		),
		mcpQueueStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("enqueue_jobs",
			mcp.WithDescription("Enqueue tracked application ids for auto-apply, respecting the user's daily quota."),
			mcp.WithNumber("user_id", mcp.Description("User id"), mcp.Required()),
			mcp.WithString("job_ids", mcp.Description("JSON array of tracked application ids"), mcp.Required()),
		),
		mcpEnqueueJobs(deps),
	)

	s.AddTool(
		mcp.NewTool("resubmit_application",
			mcp.WithDescription("Re-queue a previously failed application. Only applications whose last attempt failed are accepted."),
			mcp.WithNumber("job_id", mcp.Description("Tracked application id"), mcp.Required()),
		),
		mcpResubmit(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_activity",
			mcp.WithDescription("List a user's most recent auto-apply audit log entries."),
			mcp.WithNumber("user_id", mcp.Description("User id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum entries (default 10)")),
		),
		mcpRecentActivity(deps),
	)

	s.AddTool(
		mcp.NewTool("worker_health",
			mcp.WithDescription("Report whether the dispatch worker is running, restarting it when asked."),
			mcp.WithBoolean("ensure", mcp.Description("Restart the worker if it is not running")),
		),
		mcpWorkerHealth(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"autoapply://plans",
			"Subscription Plans",
			mcp.WithResourceDescription("Available subscription plans with daily application limits"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourcePlans(deps),
	)

	return s
}

func mcpQueueStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetInt("user_id", 0)
		if userID <= 0 {
			return mcpError("user_id is required"), nil
		}

		report, err := deps.Queue.Status(ctx, int64(userID))
		if err != nil {
			return mcpError(fmt.Sprintf("computing queue status: %v", err)), nil
		}
		b, err := json.Marshal(report)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEnqueueJobs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetInt("user_id", 0)
		if userID <= 0 {
			return mcpError("user_id is required"), nil
		}
		rawIDs, err := req.RequireString("job_ids")
		if err != nil {
			return mcpError("job_ids is required"), nil
		}
		var jobIDs []int64
		if err := json.Unmarshal([]byte(rawIDs), &jobIDs); err != nil {
			return mcpError(fmt.Sprintf("invalid job_ids JSON: %v", err)), nil
		}
		if len(jobIDs) == 0 {
			return mcpError("job_ids must not be empty"), nil
		}

		res, err := deps.Queue.Enqueue(ctx, int64(userID), jobIDs)
		if err != nil {
			return mcpError(fmt.Sprintf("enqueue failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("accepted %d of %d jobs, %d slots remaining today",
			len(res.Accepted), len(jobIDs), res.RemainingSlots)), nil
	}
}

func mcpResubmit(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID := req.GetInt("job_id", 0)
		if jobID <= 0 {
			return mcpError("job_id is required"), nil
		}
		if err := deps.Queue.Resubmit(ctx, int64(jobID)); err != nil {
			return mcpError(fmt.Sprintf("resubmit failed: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("application %d re-queued", jobID)), nil
	}
}

func mcpRecentActivity(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetInt("user_id", 0)
		if userID <= 0 {
			return mcpError("user_id is required"), nil
		}
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 100 {
			limit = 100
		}

		logs, err := deps.Store.ListLogs(ctx, int64(userID), limit)
		if err != nil {
			return mcpError(fmt.Sprintf("listing activity: %v", err)), nil
		}
		if len(logs) == 0 {
			return mcpText("[]"), nil
		}
		b, err := json.Marshal(logs)
		if err != nil {
			return mcpError(fmt.Sprintf("marshaling activity: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpWorkerHealth(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ensure := req.GetBool("ensure", false)
		if ensure {
			restarted := deps.Worker.EnsureRunning()
			if restarted {
				return mcpText("worker was down, restarted"), nil
			}
			return mcpText("worker running"), nil
		}
		if deps.Worker.Running() {
			return mcpText("worker running"), nil
		}
		return mcpText("worker stopped"), nil
	}
}

func mcpResourcePlans(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		plans, err := deps.Store.ListPlans(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing plans: %w", err)
		}

		b, err := json.Marshal(plans)
		if err != nil {
			return nil, fmt.Errorf("marshaling plans: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
