package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperengineering/sprout"
	"github.com/hyperengineering/sprout/analytics"
	"github.com/hyperengineering/sprout/plan"
	"github.com/hyperengineering/sprout/progress"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps the MCP server with Sprout tools.
type Server struct {
	client    *sprout.Client
	mcpServer *server.MCPServer
}

// ToolResult represents the result of a tool call.
type ToolResult struct {
	Content string
	IsError bool
}

// ToolInfo represents a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{Name: "sprout_submit_results", Description: "Record graded answers for a learner and update their review schedule"},
	{Name: "sprout_summary", Description: "Show a learner's retention, mastery and weak items"},
	{Name: "sprout_plan", Description: "Generate today's activity plan for a learner"},
	{Name: "sprout_sync", Description: "Push queued progress to the remote and pull a learner's changes"},
	{Name: "sprout_stats", Description: "Report local store statistics and connectivity"},
}

// NewServer creates a new MCP server with Sprout tools registered.
func NewServer(client *sprout.Client, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{client: client}
	s.mcpServer = server.NewMCPServer(
		"sprout",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// Run serves MCP over stdin/stdout.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

// HandleMessage processes a raw JSON-RPC message and returns a response.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcpServer.HandleMessage(ctx, message)
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// CallTool executes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	switch name {
	case "sprout_submit_results":
		return s.handleSubmit(ctx, args)
	case "sprout_summary":
		return s.handleSummary(ctx, args)
	case "sprout_plan":
		return s.handlePlan(ctx, args)
	case "sprout_sync":
		return s.handleSync(ctx, args)
	case "sprout_stats":
		return s.handleStats(ctx, args)
	default:
		return &ToolResult{Content: fmt.Sprintf("unknown tool: %s", name), IsError: true}, nil
	}
}

func (s *Server) registerTools() {
	resultItem := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"item_id": map[string]any{"type": "string", "description": "Item identifier, e.g. 7x8"},
			"quality": map[string]any{"type": "integer", "minimum": 0, "maximum": 5, "description": "Recall quality 0-5"},
		},
		"required": []string{"item_id", "quality"},
	}

	s.mcpServer.AddTool(mcp.NewTool("sprout_submit_results",
		mcp.WithDescription("Record graded answers for a learner. Each result updates the item's spaced-repetition schedule locally and is queued for sync."),
		mcp.WithString("learner_id",
			mcp.Description("Learner identifier"),
			mcp.Required(),
		),
		mcp.WithArray("results",
			mcp.Description("Graded answers in the order they were given"),
			mcp.Required(),
			mcp.Items(resultItem),
		),
	), s.wrap(s.handleSubmit))

	s.mcpServer.AddTool(mcp.NewTool("sprout_summary",
		mcp.WithDescription("Show a learner's 7 and 14 day retention, mastered items, efficiency score and weak items."),
		mcp.WithString("learner_id",
			mcp.Description("Learner identifier"),
			mcp.Required(),
		),
	), s.wrap(s.handleSummary))

	s.mcpServer.AddTool(mcp.NewTool("sprout_plan",
		mcp.WithDescription("Generate today's warm-up, core and cool-down activities for a learner."),
		mcp.WithString("learner_id",
			mcp.Description("Learner identifier"),
			mcp.Required(),
		),
		mcp.WithNumber("age",
			mcp.Description("Learner age in years; older learners get harder activities"),
			mcp.Required(),
		),
		mcp.WithString("name",
			mcp.Description("Learner display name"),
		),
	), s.wrap(s.handlePlan))

	s.mcpServer.AddTool(mcp.NewTool("sprout_sync",
		mcp.WithDescription("Push queued progress to the remote. When learner_id is given, also pull that learner's remote changes."),
		mcp.WithString("learner_id",
			mcp.Description("Learner to pull (optional)"),
		),
	), s.wrap(s.handleSync))

	s.mcpServer.AddTool(mcp.NewTool("sprout_stats",
		mcp.WithDescription("Report local record counts, queued jobs, last sync time and connectivity."),
	), s.wrap(s.handleStats))
}

type handler func(ctx context.Context, args map[string]any) (*ToolResult, error)

func (s *Server) wrap(h handler) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := h(ctx, req.GetArguments())
		if err != nil {
			return nil, err
		}
		return toMCPResult(result), nil
	}
}

func toMCPResult(r *ToolResult) *mcp.CallToolResult {
	result := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: r.Content,
			},
		},
	}
	if r.IsError {
		result.IsError = true
	}
	return result
}

func errorResult(format string, args ...any) *ToolResult {
	return &ToolResult{Content: fmt.Sprintf(format, args...), IsError: true}
}

// Internal handlers

func (s *Server) handleSubmit(ctx context.Context, args map[string]any) (*ToolResult, error) {
	learnerID, _ := args["learner_id"].(string)
	if learnerID == "" {
		return errorResult("learner_id is required"), nil
	}
	results, err := toResults(args["results"])
	if err != nil {
		return errorResult("%v", err), nil
	}

	recs, err := s.client.SubmitResults(ctx, learnerID, results)
	if err != nil {
		return errorResult("submit failed: %v", err), nil
	}
	return &ToolResult{Content: formatSubmitResult(recs)}, nil
}

func (s *Server) handleSummary(ctx context.Context, args map[string]any) (*ToolResult, error) {
	learnerID, _ := args["learner_id"].(string)
	if learnerID == "" {
		return errorResult("learner_id is required"), nil
	}
	sum, err := s.client.GetSummary(ctx, learnerID)
	if err != nil {
		return errorResult("summary failed: %v", err), nil
	}
	return &ToolResult{Content: formatSummary(sum)}, nil
}

func (s *Server) handlePlan(ctx context.Context, args map[string]any) (*ToolResult, error) {
	learnerID, _ := args["learner_id"].(string)
	if learnerID == "" {
		return errorResult("learner_id is required"), nil
	}
	age, ok := args["age"].(float64)
	if !ok || age < 0 {
		return errorResult("age is required"), nil
	}
	name, _ := args["name"].(string)

	acts, err := s.client.GetPlanForToday(ctx, plan.LearnerProfile{
		LearnerID: learnerID,
		Name:      name,
		Age:       int(age),
	})
	if err != nil {
		return errorResult("plan failed: %v", err), nil
	}
	return &ToolResult{Content: formatPlan(acts)}, nil
}

func (s *Server) handleSync(ctx context.Context, args map[string]any) (*ToolResult, error) {
	learnerID, _ := args["learner_id"].(string)
	stats, err := s.client.Sync(ctx, learnerID)
	if err != nil {
		if errors.Is(err, sprout.ErrOffline) {
			return errorResult("sync unavailable: no remote configured"), nil
		}
		return errorResult("sync failed: %v", err), nil
	}
	return &ToolResult{Content: fmt.Sprintf(
		"Sync completed: pushed %d records, delivered %d events, pulled %d records (%d jobs requeued)",
		stats.Drain.Pushed, stats.Drain.Delivered, stats.Pulled, stats.Drain.Reverted,
	)}, nil
}

func (s *Server) handleStats(ctx context.Context, _ map[string]any) (*ToolResult, error) {
	stats, err := s.client.Stats(ctx)
	if err != nil {
		return errorResult("stats failed: %v", err), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Records: %d across %d learners\n", stats.RecordCount, stats.LearnerCount)
	fmt.Fprintf(&sb, "Queued jobs: %d pending, %d in flight\n", stats.PendingJobs, stats.InFlightJobs)
	if stats.LastSync.IsZero() {
		sb.WriteString("Last sync: never\n")
	} else {
		fmt.Fprintf(&sb, "Last sync: %s\n", stats.LastSync.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&sb, "Online: %t", s.client.Online())
	return &ToolResult{Content: sb.String()}, nil
}

// Formatting functions

func formatSubmitResult(recs []progress.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Recorded %d results:\n", len(recs))
	for _, r := range recs {
		fmt.Fprintf(&sb, "  - %s: next review %s (interval %dd, ease %.2f, %s)\n",
			r.ItemID, r.DueDate, r.IntervalDays, r.Ease, r.MasteryLevel)
	}
	return sb.String()
}

func formatSummary(sum analytics.Summary) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summary for %s:\n", sum.LearnerID)
	fmt.Fprintf(&sb, "  Retention: %d%% (7 days), %d%% (14 days)\n", sum.Retention7Day, sum.Retention14Day)
	fmt.Fprintf(&sb, "  Mastered: %d of %d items\n", sum.ItemsMastered, sum.TotalItems)
	fmt.Fprintf(&sb, "  Due today: %d\n", sum.DueToday)
	fmt.Fprintf(&sb, "  Efficiency: %d\n", sum.EfficiencyScore)
	if len(sum.WeakItems) == 0 {
		sb.WriteString("  No weak items.\n")
		return sb.String()
	}
	sb.WriteString("  Weak items:\n")
	for _, w := range sum.WeakItems {
		fmt.Fprintf(&sb, "    - %s (ease %.2f, streak %d): try %s\n", w.ItemID, w.Ease, w.Streak, w.Remediation)
	}
	return sb.String()
}

func formatPlan(acts []plan.ActivityInstance) string {
	if len(acts) == 0 {
		return "No activities planned."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Today's plan (%d activities):\n", len(acts))
	for i, a := range acts {
		fmt.Fprintf(&sb, "  %d. [%s] %s: %s\n", i+1, a.Block, a.Title, plan.Describe(a.Config))
	}
	return sb.String()
}

// toResults converts the "results" argument into graded answers.
// Quality must be a whole number in 0..5.
func toResults(v any) ([]sprout.Result, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, errors.New("results must be a non-empty array")
	}
	out := make([]sprout.Result, 0, len(arr))
	for i, raw := range arr {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("results[%d] must be an object", i)
		}
		itemID, _ := m["item_id"].(string)
		if itemID == "" {
			return nil, fmt.Errorf("results[%d].item_id is required", i)
		}
		q, ok := m["quality"].(float64)
		if !ok || q != float64(int(q)) || q < 0 || q > 5 {
			return nil, fmt.Errorf("results[%d].quality must be an integer 0-5", i)
		}
		out = append(out, sprout.Result{ItemID: itemID, Quality: int(q)})
	}
	return out, nil
}
