package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gildigital/autoapply/internal/config"
)

// --- track ---

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track job postings and score them against your resume",
	Long: `Track job postings and score them against your resume.

The jobs file is a JSON array of postings:
  [{"title":"Backend Engineer","company":"Acme","applyUrl":"https://...","description":"...","externalId":"acme-123","source":"greenhouse"}]

Examples:
  autoapply track --user 1 --file jobs.json
  autoapply track --user 1 --file jobs.json --auto-queue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		file, _ := cmd.Flags().GetString("file")
		autoQueue, _ := cmd.Flags().GetBool("auto-queue")
		session, _ := cmd.Flags().GetString("session")

		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}
		if file == "" {
			return fmt.Errorf("--file is required")
		}

		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading jobs file: %w", err)
		}
		var jobs []map[string]any
		if err := json.Unmarshal(data, &jobs); err != nil {
			return fmt.Errorf("parsing jobs file: %w", err)
		}
		if len(jobs) == 0 {
			return fmt.Errorf("jobs file is empty")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"userId":    userID,
			"sessionId": session,
			"autoQueue": autoQueue,
			"jobs":      jobs,
		}
		resp, err := client.post(cmd.Context(), "/jobs", req)
		if err != nil {
			return err
		}

		var result struct {
			Jobs []struct {
				ID       int64  `json:"id"`
				Title    string `json:"title"`
				Score    int    `json:"score"`
				Eligible bool   `json:"eligible"`
				Error    string `json:"error"`
			} `json:"jobs"`
			Threshold      int     `json:"threshold"`
			Queued         []int64 `json:"queued"`
			RemainingSlots *int    `json:"remainingSlots"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, j := range result.Jobs {
			switch {
			case j.Error != "":
				printWarning("%s: %s", j.Title, j.Error)
			case j.Eligible:
				printSuccess("%s: score %d (eligible, threshold %d)", j.Title, j.Score, result.Threshold)
			default:
				printStatus(j.Title, "score %d (below threshold %d)", j.Score, result.Threshold)
			}
		}
		if autoQueue {
			printStep("Queued %d job(s)", len(result.Queued))
			if result.RemainingSlots != nil {
				printStatus("Remaining slots", "%d", *result.RemainingSlots)
			}
		}
		return nil
	},
}

func init() {
	trackCmd.Flags().Int64("user", 0, "user id")
	trackCmd.Flags().String("file", "", "JSON file with job postings")
	trackCmd.Flags().Bool("auto-queue", false, "enqueue eligible jobs immediately")
	trackCmd.Flags().String("session", "", "scoring session id for score reuse")
}

// --- enqueue ---

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <jobID>...",
	Short: "Queue tracked jobs for auto-apply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}

		jobIDs := make([]int64, 0, len(args))
		for _, a := range args {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid job id %q", a)
			}
			jobIDs = append(jobIDs, id)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{"userId": userID, "jobIds": jobIDs}
		resp, err := client.post(cmd.Context(), "/enqueue", req)
		if err != nil {
			return err
		}

		var result struct {
			Accepted       []int64 `json:"accepted"`
			RemainingSlots int     `json:"remainingSlots"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Queued %d of %d job(s)", len(result.Accepted), len(jobIDs))
		printStatus("Remaining slots", "%d", result.RemainingSlots)
		return nil
	},
}

func init() {
	enqueueCmd.Flags().Int64("user", 0, "user id")
}

// --- queue ---

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show queue counts and daily quota usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/queue/status?userId=%d", userID))
		if err != nil {
			return err
		}

		var report struct {
			Counts         map[string]int `json:"counts"`
			AppliedToday   int            `json:"appliedToday"`
			DailyLimit     int            `json:"dailyLimit"`
			RemainingSlots int            `json:"remainingSlots"`
			Plan           string         `json:"plan"`
		}
		if err := decodeJSON(resp, &report); err != nil {
			return err
		}

		printStatus("Plan", "%s", report.Plan)
		printStatus("Applied today", "%d of %d", report.AppliedToday, report.DailyLimit)
		printStatus("Remaining slots", "%d", report.RemainingSlots)
		for state, n := range report.Counts {
			printStatus("Queue "+state, "%d", n)
		}
		return nil
	},
}

func init() {
	queueCmd.Flags().Int64("user", 0, "user id")
}

// --- resubmit ---

var resubmitCmd = &cobra.Command{
	Use:   "resubmit <jobID>",
	Short: "Re-queue a failed application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/resubmit", map[string]any{"jobId": jobID})
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Job %d re-queued", jobID)
		return nil
	},
}

// --- logs ---

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent auto-apply activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		limit, _ := cmd.Flags().GetInt("limit")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/logs?userId=%d&limit=%d", userID, limit))
		if err != nil {
			return err
		}

		var entries []struct {
			JobID     *int64    `json:"JobID"`
			Status    string    `json:"Status"`
			Message   string    `json:"Message"`
			CreatedAt time.Time `json:"CreatedAt"`
		}
		if err := decodeJSON(resp, &entries); err != nil {
			return err
		}

		if len(entries) == 0 {
			fmt.Println("No activity found.")
			return nil
		}

		for _, e := range entries {
			job := "-"
			if e.JobID != nil {
				job = strconv.FormatInt(*e.JobID, 10)
			}
			fmt.Printf("%s  job %-6s %-10s %s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"),
				job,
				colorize(colorCyan, e.Status),
				e.Message,
			)
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().Int64("user", 0, "user id")
	logsCmd.Flags().Int("limit", 50, "maximum number of entries")
}

// --- resume ---

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Manage stored resumes",
}

var resumeUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a resume",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		makeDefault, _ := cmd.Flags().GetBool("default")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading resume file: %w", err)
		}

		contentType := mime.TypeByExtension(filepath.Ext(args[0]))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		req := map[string]any{
			"userId":      userID,
			"filename":    filepath.Base(args[0]),
			"contentType": contentType,
			"content":     base64.StdEncoding.EncodeToString(data),
			"default":     makeDefault,
		}
		resp, err := client.post(cmd.Context(), "/resumes", req)
		if err != nil {
			return err
		}

		var result struct {
			ID         string `json:"id"`
			TextLength int    `json:"textLength"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Uploaded resume %s (%d characters extracted)", result.ID, result.TextLength)
		return nil
	},
}

var resumeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored resumes",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/resumes?userId=%d", userID))
		if err != nil {
			return err
		}

		var resumes []struct {
			ID        string `json:"id"`
			Filename  string `json:"filename"`
			IsDefault bool   `json:"isDefault"`
			CreatedAt string `json:"createdAt"`
		}
		if err := decodeJSON(resp, &resumes); err != nil {
			return err
		}

		if len(resumes) == 0 {
			fmt.Println("No resumes found.")
			return nil
		}

		for _, r := range resumes {
			marker := " "
			if r.IsDefault {
				marker = colorize(colorGreen, "*")
			}
			fmt.Printf("%s %s  %s  %s\n", marker, colorize(colorCyan, r.ID[:8]), r.CreatedAt, r.Filename)
		}
		return nil
	},
}

func init() {
	resumeUploadCmd.Flags().Int64("user", 0, "user id")
	resumeUploadCmd.Flags().Bool("default", false, "make this the default resume")
	resumeListCmd.Flags().Int64("user", 0, "user id")
	resumeCmd.AddCommand(resumeUploadCmd)
	resumeCmd.AddCommand(resumeListCmd)
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage applicant profile fields",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show profile fields as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/profile?userId=%d", userID))
		if err != nil {
			return err
		}

		var fields map[string]string
		if err := decodeJSON(resp, &fields); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fields)
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a profile field",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user is required")
		}
		key, value := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{key: value}
		resp, err := client.patch(cmd.Context(), fmt.Sprintf("/profile?userId=%d", userID), body)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	profileShowCmd.Flags().Int64("user", 0, "user id")
	profileSetCmd.Flags().Int64("user", 0, "user id")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileSetCmd)
}

// --- worker ---

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Control the dispatch loop",
}

var workerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the dispatch loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return workerAction(cmd, "POST", "/worker/start")
	},
}

var workerStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the dispatch loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return workerAction(cmd, "POST", "/worker/stop")
	},
}

var workerHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report whether the dispatch loop is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return workerAction(cmd, "GET", "/worker/health")
	},
}

var workerEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Restart the dispatch loop if it died",
	RunE: func(cmd *cobra.Command, args []string) error {
		return workerAction(cmd, "POST", "/worker/ensure-running")
	},
}

func workerAction(cmd *cobra.Command, method, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.do(cmd.Context(), method, path, nil)
	if err != nil {
		return err
	}

	var result struct {
		Running   bool  `json:"running"`
		Restarted *bool `json:"restarted"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	if result.Running {
		printSuccess("Dispatch loop running")
	} else {
		printStatus("Dispatch loop", "stopped")
	}
	if result.Restarted != nil && *result.Restarted {
		printStep("Loop was dead and has been restarted")
	}
	return nil
}

func init() {
	workerCmd.AddCommand(workerStartCmd)
	workerCmd.AddCommand(workerStopCmd)
	workerCmd.AddCommand(workerHealthCmd)
	workerCmd.AddCommand(workerEnsureCmd)
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
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
