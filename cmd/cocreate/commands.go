package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/cocreate/internal/config"
	"github.com/kalambet/cocreate/internal/generation"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// textArg returns --text, or the contents of --file when --text is empty.
func textArg(cmd *cobra.Command) (string, error) {
	text, _ := cmd.Flags().GetString("text")
	file, _ := cmd.Flags().GetString("file")
	switch {
	case text != "":
		return text, nil
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading file: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("one of --text or --file is required")
}

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <request>",
	Short: "Draft a post from a request",
	Long: `Draft a post from a request, in your voice or a linked approver's.

The server may answer with clarifying questions instead of a post. Answer
them in a new request, or pass --proceed to draft anyway.

Examples:
  cocreate generate "Announce that we closed our seed round"
  cocreate generate --target dana "Lessons from our first 100 customers"
  cocreate generate --draft-file ./draft.md "Make this a hiring post"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		draftFile, _ := cmd.Flags().GetString("draft-file")
		proceed, _ := cmd.Flags().GetBool("proceed")
		skipReview, _ := cmd.Flags().GetBool("skip-review")
		noGather, _ := cmd.Flags().GetBool("no-gather")
		asJSON, _ := cmd.Flags().GetBool("json")

		req := map[string]any{
			"user_request":   strings.Join(args, " "),
			"gather_sources": !noGather,
			"options": map[string]any{
				"proceed_without_questions": proceed,
				"skip_quality_review":       skipReview,
			},
		}
		if target != "" {
			req["target_user_id"] = target
		}
		if draftFile != "" {
			data, err := os.ReadFile(draftFile)
			if err != nil {
				return fmt.Errorf("reading draft: %w", err)
			}
			req["current_draft"] = string(data)
			req["action"] = string(generation.ActionRefine)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/posts/generate", req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// Pipeline failures carry a result body, not the error envelope.
		var res generation.Result
		if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
			return fmt.Errorf("server returned %d: %w", resp.StatusCode, err)
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		return printResult(cmd.OutOrStdout(), resp.Header.Get("X-Generation-ID"), res)
	},
}

func printResult(w io.Writer, id string, res generation.Result) error {
	if !res.Success {
		return fmt.Errorf("generation failed (%s): %s", res.Failure, res.Error)
	}
	if res.NeedsMoreInfo {
		printWarning("More detail needed before this can be written authentically")
		fmt.Fprintln(w, res.Questions)
		if res.DraftContent != "" {
			fmt.Fprintf(w, "\n%s\n%s\n", colorize(colorBold, "Draft so far:"), res.DraftContent)
		}
		return nil
	}

	fmt.Fprintln(w, res.Content)
	if res.QualityScore != nil {
		printStatus("Quality", "%s (%.1f/10)", res.QualityVerdict, *res.QualityScore)
	}
	if len(res.MissingInfo) > 0 {
		printWarning("Check before posting: %s", strings.Join(res.MissingInfo, "; "))
	}
	for _, f := range res.FabricationFlags {
		printWarning("Possibly invented: %q (%s)", f.Text, f.Reason)
	}
	if id != "" {
		printStatus("Generation", "%s", id)
	}
	return nil
}

func init() {
	generateCmd.Flags().String("target", "", "write in this approver's voice")
	generateCmd.Flags().String("draft-file", "", "existing draft to rework")
	generateCmd.Flags().Bool("proceed", false, "draft even if the request lacks detail")
	generateCmd.Flags().Bool("skip-review", false, "skip the quality review")
	generateCmd.Flags().Bool("no-gather", false, "do not use stored posts, docs and context guide")
	generateCmd.Flags().Bool("json", false, "print the full result as JSON")
}

// --- refine ---

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Revise a post according to feedback",
	Long: `Revise a post according to feedback.

Examples:
  cocreate refine --file post.md --feedback "shorter, no emojis"
  pbpaste | cocreate refine --file - --feedback "punchier hook"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		feedback, _ := cmd.Flags().GetString("feedback")
		target, _ := cmd.Flags().GetString("target")
		if feedback == "" {
			return fmt.Errorf("--feedback is required")
		}
		content, err := textArg(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/posts/refine", map[string]any{
			"content":        content,
			"feedback":       feedback,
			"target_user_id": target,
		})
		if err != nil {
			return err
		}
		var out generation.RefineResult
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Content)
		return nil
	},
}

func init() {
	refineCmd.Flags().String("text", "", "post text")
	refineCmd.Flags().String("file", "", "file holding the post (- for stdin)")
	refineCmd.Flags().String("feedback", "", "what to change")
	refineCmd.Flags().String("target", "", "whose voice the post is in")
}

// --- voice ---

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Inspect and rebuild voice profiles",
}

var voiceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show a voice profile as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		simplified, _ := cmd.Flags().GetBool("simplified")

		q := url.Values{}
		if target != "" {
			q.Set("target_user_id", target)
		}
		if simplified {
			q.Set("view", "simplified")
		}
		path := "/v1/voice-profile"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), profile)
	},
}

var voiceAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Rebuild your voice profile from stored sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Analyzing voice...")
		resp, err := client.post(cmd.Context(), "/v1/voice-profile/analyze", map[string]any{"force": force})
		if err != nil {
			return err
		}
		var profile struct {
			Version         int `json:"version"`
			AnalysisSources struct {
				PastPostsCount int    `json:"past_posts_count"`
				TrainingDocs   int    `json:"training_docs_count"`
				Method         string `json:"analysis_method"`
			} `json:"analysis_sources"`
		}
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		printSuccess("Voice profile v%d (%s; %d posts, %d docs)", profile.Version,
			profile.AnalysisSources.Method, profile.AnalysisSources.PastPostsCount, profile.AnalysisSources.TrainingDocs)
		return nil
	},
}

var voiceInsightsCmd = &cobra.Command{
	Use:   "insights <key=value>...",
	Short: "Record performance insights on your profile",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		insights := map[string]any{}
		for _, arg := range args {
			k, v, ok := strings.Cut(arg, "=")
			if !ok || k == "" {
				return fmt.Errorf("invalid insight %q, want key=value", arg)
			}
			// Numbers and booleans are stored as such.
			var parsed any
			if json.Unmarshal([]byte(v), &parsed) == nil {
				insights[k] = parsed
			} else {
				insights[k] = v
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/v1/voice-profile/insights", insights)
		if err != nil {
			return err
		}
		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}
		printSuccess("Updated %d insight(s)", len(insights))
		return nil
	},
}

func init() {
	voiceShowCmd.Flags().String("target", "", "profile owner")
	voiceShowCmd.Flags().Bool("simplified", false, "show the condensed view")
	voiceAnalyzeCmd.Flags().Bool("force", false, "re-analyze even if the profile is current")
	voiceCmd.AddCommand(voiceShowCmd, voiceAnalyzeCmd, voiceInsightsCmd)
}

// --- posts ---

var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Manage past posts used as voice samples",
}

var postsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a published post",
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := textArg(cmd)
		if err != nil {
			return err
		}
		published, _ := cmd.Flags().GetString("published")

		req := map[string]any{"content": content}
		if published != "" {
			t, err := time.Parse(time.DateOnly, published)
			if err != nil {
				return fmt.Errorf("invalid --published date %q, want YYYY-MM-DD", published)
			}
			req["published_at"] = t
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/posts", req)
		if err != nil {
			return err
		}
		var post struct {
			ID string `json:"id"`
		}
		if err := decodeJSON(resp, &post); err != nil {
			return err
		}
		printSuccess("Added post %s", post.ID)
		return nil
	},
}

var postsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored posts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/posts?limit=%d", limit))
		if err != nil {
			return err
		}
		var posts []struct {
			ID          string     `json:"id"`
			Content     string     `json:"content"`
			PublishedAt *time.Time `json:"published_at"`
			CreatedAt   time.Time  `json:"created_at"`
		}
		if err := decodeJSON(resp, &posts); err != nil {
			return err
		}
		if len(posts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No posts found.")
			return nil
		}
		for _, p := range posts {
			when := p.CreatedAt
			if p.PublishedAt != nil {
				when = *p.PublishedAt
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
				colorize(colorCyan, shortID(p.ID)), when.Format(time.DateOnly), excerpt(p.Content, 80))
		}
		return nil
	},
}

func init() {
	postsAddCmd.Flags().String("text", "", "post text")
	postsAddCmd.Flags().String("file", "", "file holding the post (- for stdin)")
	postsAddCmd.Flags().String("published", "", "publication date (YYYY-MM-DD)")
	postsListCmd.Flags().Int("limit", 20, "maximum number of posts to list")
	postsCmd.AddCommand(postsAddCmd, postsListCmd)
}

// --- training docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage training documents",
}

// plainTextExts are uploaded as text; anything else is sent as a file.
var plainTextExts = map[string]bool{".txt": true, ".md": true, ".markdown": true}

var docsAddCmd = &cobra.Command{
	Use:   "add <file>",
	Short: "Upload a document (PDF, HTML or text) as writing samples",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		req := map[string]any{"file_name": filepath.Base(path)}
		if plainTextExts[strings.ToLower(filepath.Ext(path))] {
			req["type"] = "text"
			req["content"] = string(data)
		} else {
			req["type"] = "file"
			req["content"] = base64.StdEncoding.EncodeToString(data)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/training-docs", req)
		if err != nil {
			return err
		}
		var doc struct {
			ID        string `json:"id"`
			WordCount int    `json:"word_count"`
		}
		if err := decodeJSON(resp, &doc); err != nil {
			return err
		}
		printSuccess("Uploaded %s (%d words)", filepath.Base(path), doc.WordCount)
		return nil
	},
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/training-docs")
		if err != nil {
			return err
		}
		var docs []struct {
			ID        string    `json:"id"`
			FileName  string    `json:"file_name"`
			WordCount int       `json:"word_count"`
			CreatedAt time.Time `json:"created_at"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No training documents found.")
			return nil
		}
		for _, d := range docs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s (%d words)\n",
				colorize(colorCyan, shortID(d.ID)), d.CreatedAt.Format(time.DateOnly), d.FileName, d.WordCount)
		}
		return nil
	},
}

func init() {
	docsCmd.AddCommand(docsAddCmd, docsListCmd)
}

// --- context guide ---

var guideCmd = &cobra.Command{
	Use:   "guide",
	Short: "Manage your context guide (who you are, what you write about)",
}

var guideSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace your context guide",
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := textArg(cmd)
		if err != nil {
			return err
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.put(cmd.Context(), "/v1/context-guide", map[string]any{"content": content})
		if err != nil {
			return err
		}
		var guide any
		if err := decodeJSON(resp, &guide); err != nil {
			return err
		}
		printSuccess("Context guide saved (%d words)", len(strings.Fields(content)))
		return nil
	},
}

var guideShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print your context guide",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/context-guide")
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "No context guide set.")
			return nil
		}
		var guide struct {
			Content string `json:"content"`
		}
		if err := decodeJSON(resp, &guide); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), guide.Content)
		return nil
	},
}

func init() {
	guideSetCmd.Flags().String("text", "", "guide text")
	guideSetCmd.Flags().String("file", "", "file holding the guide (- for stdin)")
	guideCmd.AddCommand(guideSetCmd, guideShowCmd)
}

// --- ghostwriter links ---

type relationship struct {
	ID            string `json:"id"`
	GhostwriterID string `json:"ghostwriter_id"`
	ApproverID    string `json:"approver_id"`
	Status        string `json:"status"`
}

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "Manage ghostwriter relationships",
}

var linksRequestCmd = &cobra.Command{
	Use:   "request <approver>",
	Short: "Ask to ghostwrite for another user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeLink(cmd, http.MethodPost, "/v1/relationships", map[string]any{"approver_id": args[0]}, "Requested")
	},
}

var linksAcceptCmd = &cobra.Command{
	Use:   "accept <id>",
	Short: "Accept a ghostwriter's request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeLink(cmd, http.MethodPost, "/v1/relationships/"+args[0]+"/accept", nil, "Accepted")
	},
}

var linksRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "End a ghostwriter relationship",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeLink(cmd, http.MethodDelete, "/v1/relationships/"+args[0], nil, "Revoked")
	},
}

func changeLink(cmd *cobra.Command, method, path string, body any, verb string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	resp, err := client.do(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	var rel relationship
	if err := decodeJSON(resp, &rel); err != nil {
		return err
	}
	printSuccess("%s %s (%s writes for %s, %s)", verb, rel.ID, rel.GhostwriterID, rel.ApproverID, rel.Status)
	return nil
}

var linksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List relationships you are part of",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/relationships")
		if err != nil {
			return err
		}
		var rels []relationship
		if err := decodeJSON(resp, &rels); err != nil {
			return err
		}
		if len(rels) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No relationships.")
			return nil
		}
		for _, r := range rels {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s -> %s  %s\n", r.ID, r.GhostwriterID, r.ApproverID, r.Status)
		}
		return nil
	},
}

func init() {
	linksCmd.AddCommand(linksRequestCmd, linksAcceptCmd, linksRevokeCmd, linksListCmd)
}

// --- generations ---

var generationsCmd = &cobra.Command{
	Use:   "generations",
	Short: "Browse past generation runs",
}

var generationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent generations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/generations?limit=%d", limit))
		if err != nil {
			return err
		}
		var gens []struct {
			ID          string    `json:"id"`
			UserRequest string    `json:"user_request"`
			Outcome     string    `json:"outcome"`
			CreatedAt   time.Time `json:"created_at"`
		}
		if err := decodeJSON(resp, &gens); err != nil {
			return err
		}
		if len(gens) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No generations found.")
			return nil
		}
		for _, g := range gens {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %-15s  %s\n",
				colorize(colorCyan, shortID(g.ID)), g.CreatedAt.Format(time.DateTime), g.Outcome, excerpt(g.UserRequest, 60))
		}
		return nil
	},
}

var generationsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a generation with its full result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/generations/"+args[0])
		if err != nil {
			return err
		}
		var g any
		if err := decodeJSON(resp, &g); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), g)
	},
}

func init() {
	generationsListCmd.Flags().Int("limit", 20, "maximum number of generations to list")
	generationsCmd.AddCommand(generationsListCmd, generationsShowCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store a secret (e.g. llm.api_key) in the platform secret store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetSecret(config.NewKeychain(), args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configSetSecretCmd)
}
