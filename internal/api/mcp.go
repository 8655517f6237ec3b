package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/cocreate/internal/generation"
	"github.com/kalambet/cocreate/internal/sources"
	"github.com/kalambet/cocreate/internal/storage"
	"github.com/kalambet/cocreate/internal/voice"
)

// MCPDeps holds dependencies for the MCP server. An MCP session acts for a
// single user, UserID.
type MCPDeps struct {
	Store    *storage.Store
	Pipeline *generation.Pipeline
	Profiles *voice.Store
	Sources  *sources.Gatherer
	UserID   string
	Timeout  time.Duration
}

// NewMCPServer creates an MCP server with the cocreate tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"cocreate",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("cocreate drafts LinkedIn posts in a user's own voice. Generation may ask follow-up questions instead of returning a post."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("generate_post",
			mcp.WithDescription("Draft a LinkedIn post in the user's voice. May return clarifying questions instead of a post."),
			mcp.WithString("request", mcp.Description("What the post should be about"), mcp.Required()),
			mcp.WithString("target_user_id", mcp.Description("Write in this user's voice (requires an active ghostwriter relationship)")),
			mcp.WithString("current_draft", mcp.Description("Existing draft or extra context to build on")),
			mcp.WithBoolean("proceed_without_questions", mcp.Description("Draft even if the request lacks detail")),
			mcp.WithBoolean("skip_quality_review", mcp.Description("Skip the quality review stage")),
		),
		mcpGeneratePost(deps),
	)

	s.AddTool(
		mcp.NewTool("refine_post",
			mcp.WithDescription("Revise an existing post according to feedback, keeping the author's voice."),
			mcp.WithString("content", mcp.Description("The post to revise"), mcp.Required()),
			mcp.WithString("feedback", mcp.Description("What to change"), mcp.Required()),
			mcp.WithString("target_user_id", mcp.Description("Whose voice the post is written in")),
		),
		mcpRefinePost(deps),
	)

	s.AddTool(
		mcp.NewTool("get_voice_profile",
			mcp.WithDescription("Return the stored voice profile for the user or a linked approver."),
			mcp.WithString("target_user_id", mcp.Description("Profile owner (defaults to the current user)")),
			mcp.WithBoolean("simplified", mcp.Description("Return the condensed view used in generation results")),
		),
		mcpGetVoiceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"cocreate://generations/recent",
			"Recent Generations",
			mcp.WithResourceDescription("Last 10 generation runs (request and outcome only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func (d MCPDeps) timeout() time.Duration {
	if d.Timeout <= 0 {
		return 60 * time.Second
	}
	return d.Timeout
}

func mcpGeneratePost(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		request, err := req.RequireString("request")
		if err != nil {
			return mcpError("request is required"), nil
		}
		target := req.GetString("target_user_id", "")
		if target == "" {
			target = deps.UserID
		}

		ctx, cancel := context.WithTimeout(ctx, deps.timeout())
		defer cancel()

		if err := deps.Profiles.CheckAccess(ctx, deps.UserID, target); err != nil {
			return mcpError(fmt.Sprintf("cannot write as %s: %v", target, err)), nil
		}
		src, err := deps.Sources.Gather(ctx, target)
		if err != nil {
			return mcpError(fmt.Sprintf("gathering sources failed: %v", err)), nil
		}

		genReq := generateRequest{
			UserRequest:  request,
			TargetUserID: target,
			CurrentDraft: req.GetString("current_draft", ""),
			Options: generation.Options{
				ProceedWithoutQuestions: req.GetBool("proceed_without_questions", false),
				SkipQualityReview:       req.GetBool("skip_quality_review", false),
			},
		}
		res := deps.Pipeline.Generate(ctx, generation.GenerateParams{
			UserRequest:  genReq.UserRequest,
			UserID:       deps.UserID,
			TargetUserID: target,
			Sources:      src,
			CurrentDraft: genReq.CurrentDraft,
			Options:      genReq.Options,
		})
		if _, err := saveGeneration(context.WithoutCancel(ctx), deps.Store, deps.UserID, target, genReq, res); err != nil {
			slog.Error("failed to save generation", "error", err, "user_id", deps.UserID)
		}

		switch {
		case !res.Success:
			return mcpError(res.Error), nil
		case res.NeedsMoreInfo:
			return mcpText(res.Questions), nil
		default:
			return mcpText(res.Content), nil
		}
	}
}

func mcpRefinePost(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}
		feedback, err := req.RequireString("feedback")
		if err != nil {
			return mcpError("feedback is required"), nil
		}

		ctx, cancel := context.WithTimeout(ctx, deps.timeout())
		defer cancel()

		out, err := deps.Pipeline.Refine(ctx, deps.UserID, req.GetString("target_user_id", ""), content, feedback)
		if err != nil {
			return mcpError(fmt.Sprintf("refine failed: %v", err)), nil
		}
		return mcpText(out.Content), nil
	}
}

func mcpGetVoiceProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		target := req.GetString("target_user_id", "")
		if target == "" {
			target = deps.UserID
		}
		p, err := deps.Profiles.GetWithAccess(ctx, deps.UserID, target)
		if errors.Is(err, voice.ErrAccessDenied) {
			return mcpError(fmt.Sprintf("no active ghostwriter relationship with %s", target)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load profile: %v", err)), nil
		}
		if p == nil {
			return mcpText("No voice profile yet. Add posts, training docs or a context guide first."), nil
		}

		var v any = p
		if req.GetBool("simplified", false) {
			v = voice.Simplify(p)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profile: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		gens, err := deps.Store.ListGenerations(ctx, deps.UserID, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to list generations: %w", err)
		}

		type generationSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Request   string `json:"request"`
			Outcome   string `json:"outcome"`
		}

		summaries := make([]generationSummary, len(gens))
		for i, g := range gens {
			request := g.UserRequest
			if utf8.RuneCountInString(request) > 200 {
				runes := []rune(request)
				request = string(runes[:200]) + "..."
			}
			summaries[i] = generationSummary{
				ID:        g.ID,
				CreatedAt: g.CreatedAt.Format(time.RFC3339),
				Request:   request,
				Outcome:   g.Outcome,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal generations: %w", err)
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
