package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apexai/apex/internal/aggregate"
	"github.com/apexai/apex/internal/api"
	"github.com/apexai/apex/internal/config"
	"github.com/apexai/apex/internal/document"
	"github.com/apexai/apex/internal/session"
	"github.com/apexai/apex/internal/storage"
)

// --- auth ---

type contactFlags struct {
	email    string
	phone    string
	dialCode string
}

func (f contactFlags) resolve() (session.ContactKind, string, error) {
	switch {
	case f.email != "" && f.phone != "":
		return "", "", fmt.Errorf("use either --email or --phone, not both")
	case f.email != "":
		return session.KindEmail, f.email, nil
	case f.phone != "":
		return session.KindPhone, f.phone, nil
	default:
		return "", "", fmt.Errorf("one of --email or --phone is required")
	}
}

func addContactFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "email address")
	cmd.Flags().String("phone", "", "phone number (local digits)")
	cmd.Flags().String("dial-code", session.DefaultDialCode, "country dial code for --phone")
	cmd.Flags().String("role", string(storage.RoleCustomer), "admin or customer")
}

func readContactFlags(cmd *cobra.Command) contactFlags {
	email, _ := cmd.Flags().GetString("email")
	phone, _ := cmd.Flags().GetString("phone")
	dial, _ := cmd.Flags().GetString("dial-code")
	return contactFlags{email: email, phone: phone, dialCode: dial}
}

var signupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	Long: `Create an account and sign in.

Examples:
  apex signup --email ana@example.com --name "Ana Silva"
  apex signup --phone 9876543210 --dial-code +91 --name Ravi --role admin`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, contact, err := readContactFlags(cmd).resolve()
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("--name is required")
		}
		role, _ := cmd.Flags().GetString("role")
		dial, _ := cmd.Flags().GetString("dial-code")

		req := session.SignUpRequest{
			Kind:        kind,
			Contact:     contact,
			DialCode:    dial,
			DisplayName: name,
			Role:        storage.Role(role),
		}
		return authenticate(cmd.Context(), "/auth/signup", req)
	},
}

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in with an email or phone number",
	Long: `Sign in with an email or phone number.

A contact without an account gets a demo session for the requested role.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, contact, err := readContactFlags(cmd).resolve()
		if err != nil {
			return err
		}
		role, _ := cmd.Flags().GetString("role")
		dial, _ := cmd.Flags().GetString("dial-code")

		req := session.SignInRequest{
			Kind:     kind,
			Contact:  contact,
			DialCode: dial,
			Role:     storage.Role(role),
		}
		return authenticate(cmd.Context(), "/auth/signin", req)
	},
}

func authenticate(ctx context.Context, path string, req any) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.session = nil

	resp, err := client.post(ctx, path, req)
	if err != nil {
		return err
	}
	var out session.Outcome
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}

	cache, err := newSessionCache()
	if err != nil {
		return err
	}
	if err := cache.Save(out); err != nil {
		return err
	}

	if out.Mode == session.ModeDemo {
		printWarning("No account for %s; signed in as demo user %s", out.Session.Contact, out.Session.Name)
		return nil
	}
	printSuccess("Signed in as %s (%s)", out.Session.Name, out.Session.Role)
	return nil
}

var signoutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Forget the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := newSessionCache()
		if err != nil {
			return err
		}
		if err := cache.Clear(); err != nil {
			return err
		}
		printSuccess("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cache, err := newSessionCache()
		if err != nil {
			return err
		}
		out, err := cache.Load()
		if err != nil {
			return err
		}
		printStatus("Name", "%s", out.Session.Name)
		printStatus("Role", "%s", out.Session.Role)
		printStatus("Contact", "%s", out.Session.Contact)
		printStatus("User ID", "%s", out.Session.UserID)
		printStatus("Mode", "%s", out.Mode)
		return nil
	},
}

func init() {
	addContactFlags(signupCmd)
	signupCmd.Flags().String("name", "", "display name")
	addContactFlags(signinCmd)
}

// --- analyze ---

type analyzeFlags struct {
	text     string
	url      string
	reel     string
	image    string
	video    string
	document string
	caption  string
}

// request builds the API request for exactly one of the source flags.
func (f analyzeFlags) request() (api.AnalyzeRequest, error) {
	set := 0
	for _, v := range []string{f.text, f.url, f.reel, f.image, f.video, f.document} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return api.AnalyzeRequest{}, fmt.Errorf("exactly one of --text, --url, --reel, --image, --video or --document is required")
	}

	switch {
	case f.text != "":
		return api.AnalyzeRequest{Origin: string(storage.OriginText), Text: f.text}, nil
	case f.url != "":
		if err := checkLink(f.url); err != nil {
			return api.AnalyzeRequest{}, err
		}
		return api.AnalyzeRequest{Origin: string(storage.OriginURL), Text: f.url}, nil
	case f.reel != "":
		if err := checkLink(f.reel); err != nil {
			return api.AnalyzeRequest{}, err
		}
		return api.AnalyzeRequest{Origin: string(storage.OriginReel), Text: f.reel}, nil
	case f.image != "":
		return mediaRequest(storage.OriginImage, f.image, f.caption)
	case f.video != "":
		return mediaRequest(storage.OriginVideo, f.video, f.caption)
	default:
		text, err := document.PDFText(f.document)
		if err != nil {
			return api.AnalyzeRequest{}, err
		}
		if text == "" {
			return api.AnalyzeRequest{}, fmt.Errorf("no text found in %s", f.document)
		}
		return api.AnalyzeRequest{Origin: string(storage.OriginText), Text: text}, nil
	}
}

func checkLink(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) link", raw)
	}
	return nil
}

func mediaRequest(origin storage.Origin, path, caption string) (api.AnalyzeRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.AnalyzeRequest{}, fmt.Errorf("reading file: %w", err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return api.AnalyzeRequest{
		Origin: string(origin),
		Text:   caption,
		File: &api.FilePayload{
			Data:     base64.StdEncoding.EncodeToString(data),
			MIMEType: mimeType,
		},
	}, nil
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Classify one piece of feedback and store it",
	Long: `Classify one piece of feedback and store it.

Examples:
  apex analyze --text "Delivery was late again"
  apex analyze --url https://example.com/reviews/123
  apex analyze --reel https://www.instagram.com/reel/abc
  apex analyze --image ./complaint.jpg --caption "broken seal"
  apex analyze --document ./survey.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var f analyzeFlags
		f.text, _ = cmd.Flags().GetString("text")
		f.url, _ = cmd.Flags().GetString("url")
		f.reel, _ = cmd.Flags().GetString("reel")
		f.image, _ = cmd.Flags().GetString("image")
		f.video, _ = cmd.Flags().GetString("video")
		f.document, _ = cmd.Flags().GetString("document")
		f.caption, _ = cmd.Flags().GetString("caption")

		req, err := f.request()
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.requireSession(); err != nil {
			return err
		}

		printStep("Analyzing %s feedback...", req.Origin)
		resp, err := client.post(cmd.Context(), "/feedback/analyze", req)
		if err != nil {
			return err
		}
		var rec storage.FeedbackRecord
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		printRecord(rec)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("text", "", "feedback text")
	analyzeCmd.Flags().String("url", "", "link to a review or post")
	analyzeCmd.Flags().String("reel", "", "link to an Instagram reel")
	analyzeCmd.Flags().String("image", "", "path to an image file")
	analyzeCmd.Flags().String("video", "", "path to a video file")
	analyzeCmd.Flags().String("document", "", "path to a PDF whose text is analyzed")
	analyzeCmd.Flags().String("caption", "", "optional caption for --image or --video")
}

// --- feedback ---

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "List or purge stored feedback",
}

func sentimentQuery(cmd *cobra.Command) (string, error) {
	s, _ := cmd.Flags().GetString("sentiment")
	if s == "" {
		return "", nil
	}
	sentiment, err := storage.ParseSentiment(s)
	if err != nil {
		return "", err
	}
	return "sentiment=" + url.QueryEscape(string(sentiment)), nil
}

var feedbackListCmd = &cobra.Command{
	Use:   "list",
	Short: "List feedback, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := sentimentQuery(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.requireSession(); err != nil {
			return err
		}

		path := fmt.Sprintf("/feedback?limit=%d", limit)
		if q != "" {
			path += "&" + q
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var recs []storage.FeedbackRecord
		if err := decodeJSON(resp, &recs); err != nil {
			return err
		}

		if asJSON {
			return printJSON(recs)
		}
		if len(recs) == 0 {
			fmt.Println("No feedback found.")
			return nil
		}
		for _, r := range recs {
			printRecordLine(r)
		}
		return nil
	},
}

var feedbackPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored feedback (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL stored feedback. Use --confirm to proceed.")
			return nil
		}
		q, err := sentimentQuery(cmd)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.requireSession(); err != nil {
			return err
		}

		path := "/feedback"
		if q != "" {
			path += "?" + q
		}
		printStep("Deleting feedback...")
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}
		var result api.DeleteResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if q != "" && result.Deleted == 0 {
			printWarning("Filtered purge is not supported; nothing was deleted")
			return nil
		}
		printSuccess("Deleted %d feedback records", result.Deleted)
		return nil
	},
}

func init() {
	feedbackListCmd.Flags().String("sentiment", "", "only Positive, Neutral or Negative feedback")
	feedbackListCmd.Flags().Int("limit", 20, "maximum number of records")
	feedbackListCmd.Flags().Bool("json", false, "print records as JSON")
	feedbackPurgeCmd.Flags().Bool("confirm", false, "confirm deletion")
	feedbackPurgeCmd.Flags().String("sentiment", "", "only Positive, Neutral or Negative feedback")
	feedbackCmd.AddCommand(feedbackListCmd)
	feedbackCmd.AddCommand(feedbackPurgeCmd)
}

// --- simulate ---

var simulateCmd = &cobra.Command{
	Use:   "simulate <business>",
	Short: "Generate and store five sample reviews for a business (admin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		business := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.requireSession(); err != nil {
			return err
		}

		printStep("Generating sample feedback for %s...", business)
		resp, err := client.post(cmd.Context(), "/feedback/simulate", api.SimulateRequest{Business: business})
		if err != nil {
			return err
		}
		var recs []storage.FeedbackRecord
		if err := decodeJSON(resp, &recs); err != nil {
			return err
		}

		for _, r := range recs {
			printRecordLine(r)
		}
		printSuccess("Stored %d simulated records", len(recs))
		return nil
	},
}

// --- dashboard ---

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show dashboard figures for the visible feedback",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.requireSession(); err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/dashboard")
		if err != nil {
			return err
		}
		var d aggregate.Dashboard
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		if asJSON {
			return printJSON(d)
		}
		printDashboard(d)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().Bool("json", false, "print the dashboard as JSON")
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Write an executive summary of recent feedback (admin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.requireSession(); err != nil {
			return err
		}

		printStep("Summarizing feedback...")
		resp, err := client.post(cmd.Context(), "/summary", nil)
		if err != nil {
			return err
		}
		var result api.SummaryResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Summary)
		return nil
	},
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
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
	Use:   "set-secret <key>",
	Short: "Store a secret (API key, password) in the platform secret store",
	Long: "Store a secret in the platform secret store. The value is read from stdin.\n\nSecret keys: " +
		strings.Join(config.SecretKeys(), ", "),
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &value); err != nil || value == "" {
			return fmt.Errorf("reading secret from stdin: expected a single non-empty line")
		}
		if err := config.SetSecret(args[0], value); err != nil {
			return err
		}
		printSuccess("Stored %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
