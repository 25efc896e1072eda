package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesenbrink/helpnow/internal/config"
)

// --- auth ---

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in with your membership email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		email := strings.TrimSpace(args[0])

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/auth/login", map[string]string{"email": email})
		if err != nil {
			return err
		}

		if resp.StatusCode >= 400 {
			switch errorType(resp) {
			case "connection_error":
				printError("Could not reach the membership service. Check your connection and try again.")
			case "email_not_found":
				printError("No membership found for %s.", email)
			case "no_active_membership":
				printError("The membership for %s is not active.", email)
			default:
				printError("Sign-in failed (HTTP %d).", resp.StatusCode)
			}
			return fmt.Errorf("sign-in failed")
		}

		var rec struct {
			Email string `json:"email"`
		}
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		printSuccess("Signed in as %s", rec.Email)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/auth/session")
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Signed out")
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/auth/session")
		if err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			resp.Body.Close()
			printStatus("Session", "signed out")
			return nil
		}

		var rec struct {
			Email     string `json:"email"`
			LeadID    string `json:"leadId"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := decodeJSON(resp, &rec); err != nil {
			return err
		}

		printStatus("Signed in as", "%s", rec.Email)
		issued := time.UnixMilli(rec.Timestamp)
		printStatus("Signed in", "%s", timeAgo(issued))
		printStatus("Expires", "%s", issued.Add(30*24*time.Hour).Format("2006-01-02"))
		return nil
	},
}

// --- catalog ---

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Browse the behavior catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all behaviors",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/catalog")
		if err != nil {
			return err
		}

		var behaviors []struct {
			Slug       string `json:"slug"`
			Title      string `json:"title"`
			Situations int    `json:"situations"`
		}
		if err := decodeJSON(resp, &behaviors); err != nil {
			return err
		}

		for _, b := range behaviors {
			fmt.Printf("%s  %s (%d situations)\n",
				colorize(colorCyan, b.Slug), b.Title, b.Situations)
		}
		return nil
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <behavior>",
	Short: "List the situations for one behavior",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/catalog/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var situations []struct {
			Slug  string `json:"slug"`
			Title string `json:"title"`
		}
		if err := decodeJSON(resp, &situations); err != nil {
			return err
		}

		for _, s := range situations {
			fmt.Printf("%s  %s\n", colorize(colorCyan, s.Slug), s.Title)
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogShowCmd)
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search behaviors and situations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/search?q="+url.QueryEscape(query))
		if err != nil {
			return err
		}

		var matches []struct {
			Label         string `json:"label"`
			BehaviorSlug  string `json:"behaviorSlug"`
			SituationSlug string `json:"situationSlug"`
		}
		if err := decodeJSON(resp, &matches); err != nil {
			return err
		}

		if len(matches) == 0 {
			fmt.Println("No matches found.")
			return nil
		}

		for _, m := range matches {
			fmt.Println(m.Label)
		}
		return nil
	},
}

// --- view ---

var viewCmd = &cobra.Command{
	Use:   "view <behavior> <situation>",
	Short: "Show the video for a situation and record the view",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		behavior, situation := args[0], args[1]

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/catalog/"+url.PathEscape(behavior)+"/"+url.PathEscape(situation))
		if err != nil {
			return err
		}

		var entry struct {
			VideoURL string `json:"videoUrl"`
			Prompt   string `json:"prompt2"`
		}
		if err := decodeJSON(resp, &entry); err != nil {
			return err
		}

		fmt.Println(entry.VideoURL)
		if entry.Prompt != "" {
			fmt.Printf("\n%s\n", entry.Prompt)
		}

		recordResp, err := client.post(cmd.Context(), "/recent", map[string]string{
			"behavior":  behavior,
			"situation": situation,
		})
		if err != nil {
			return err
		}
		recordResp.Body.Close()
		return nil
	},
}

// --- favorites ---

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "Manage favorite videos",
}

var favoritesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorite videos, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRecords(cmd, "/favorites", "No favorites yet.")
	},
}

var favoritesToggleCmd = &cobra.Command{
	Use:   "toggle <behavior> <situation>",
	Short: "Favorite or unfavorite a video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/favorites/toggle", map[string]string{
			"behavior":  args[0],
			"situation": args[1],
		})
		if err != nil {
			return err
		}

		var result map[string]bool
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result["favorited"] {
			printSuccess("Added %s/%s to favorites", args[0], args[1])
		} else {
			printSuccess("Removed %s/%s from favorites", args[0], args[1])
		}
		return nil
	},
}

var favoritesClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all favorites",
	RunE: func(cmd *cobra.Command, args []string) error {
		return clearList(cmd, "/favorites", "Favorites cleared")
	},
}

func init() {
	favoritesCmd.AddCommand(favoritesListCmd)
	favoritesCmd.AddCommand(favoritesToggleCmd)
	favoritesCmd.AddCommand(favoritesClearCmd)
}

// --- recently viewed ---

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Manage recently viewed videos",
}

var recentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recently viewed videos, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRecords(cmd, "/recent", "Nothing viewed yet.")
	},
}

var recentClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the recently viewed list",
	RunE: func(cmd *cobra.Command, args []string) error {
		return clearList(cmd, "/recent", "Recently viewed cleared")
	},
}

func init() {
	recentCmd.AddCommand(recentListCmd)
	recentCmd.AddCommand(recentClearCmd)
}

type listedRecord struct {
	BehaviorSlug   string `json:"behavior"`
	SituationSlug  string `json:"situation"`
	Title          string `json:"title"`
	SituationTitle string `json:"situationTitle"`
	Timestamp      int64  `json:"timestamp"`
}

func listRecords(cmd *cobra.Command, path, emptyMsg string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}

	var records []listedRecord
	if err := decodeJSON(resp, &records); err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Println(emptyMsg)
		return nil
	}

	for _, r := range records {
		fmt.Printf("%s  %s / %s  (%s)\n",
			colorize(colorCyan, r.BehaviorSlug+"/"+r.SituationSlug),
			r.Title, r.SituationTitle,
			timeAgo(time.UnixMilli(r.Timestamp)),
		)
	}
	return nil
}

func clearList(cmd *cobra.Command, path, doneMsg string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.delete(cmd.Context(), path)
	if err != nil {
		return err
	}
	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		return err
	}

	printSuccess("%s", doneMsg)
	return nil
}

func timeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or purge stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export favorites, recently viewed, and session as JSONL",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var writer *os.File
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		} else {
			writer = os.Stdout
		}

		enc := json.NewEncoder(writer)

		for _, section := range []struct {
			path string
			kind string
		}{
			{"/favorites", "favorite"},
			{"/recent", "recently_viewed"},
			{"/views?limit=500", "view_event"},
		} {
			resp, err := client.get(cmd.Context(), section.path)
			if err != nil {
				return err
			}
			var records []any
			if err := decodeJSON(resp, &records); err != nil {
				return err
			}
			for _, r := range records {
				enc.Encode(map[string]any{"type": section.kind, "data": r})
			}
		}

		resp, err := client.get(cmd.Context(), "/auth/session")
		if err != nil {
			return err
		}
		if resp.StatusCode == 200 {
			var rec any
			if err := decodeJSON(resp, &rec); err != nil {
				return err
			}
			enc.Encode(map[string]any{"type": "session", "data": rec})
		} else {
			resp.Body.Close()
		}

		if output != "" {
			printSuccess("Data exported to %s", output)
		}
		return nil
	},
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all personalization data and the saved session",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL favorites, viewing history, and the saved session. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Clearing favorites...")
		if resp, err := client.delete(cmd.Context(), "/favorites"); err != nil {
			return err
		} else {
			resp.Body.Close()
		}

		printStep("Clearing recently viewed...")
		if resp, err := client.delete(cmd.Context(), "/recent"); err != nil {
			return err
		} else {
			resp.Body.Close()
		}

		printStep("Clearing view history...")
		if resp, err := client.delete(cmd.Context(), "/views"); err != nil {
			return err
		} else {
			resp.Body.Close()
		}

		printStep("Clearing session...")
		if resp, err := client.delete(cmd.Context(), "/auth/session"); err != nil {
			return err
		} else {
			resp.Body.Close()
		}

		printSuccess("All data purged")
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm data purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
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

// --- test-lead ---

var testLeadCmd = &cobra.Command{
	Use:   "test-lead <email>",
	Short: "Create a test lead in Kartra (support tooling)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		client := newKartraClient(cfg)
		raw, err := client.CreateTestLead(cmd.Context(), args[0])
		if err != nil {
			printError("Creating test lead failed: %v", err)
			return err
		}

		var pretty any
		if err := json.Unmarshal(raw, &pretty); err == nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(pretty)
		} else {
			os.Stdout.Write(raw)
		}

		printSuccess("Test lead created for %s", args[0])
		return nil
	},
}
