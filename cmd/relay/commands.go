package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/relay/internal/composer"
	"github.com/kalambet/relay/internal/config"
	"github.com/kalambet/relay/internal/dispatch"
	"github.com/kalambet/relay/internal/memory"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <prompt>",
	Short: "Send a prompt to the configured backend",
	Long: `Send a prompt to the configured backend.

Examples:
  relay chat "explain goroutines"
  relay chat --session work "what did we discuss yesterday?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID != "" && !memory.ValidSessionID(sessionID) {
			return fmt.Errorf("invalid session id %q", sessionID)
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		backend, err := dispatch.FromConfig(cfg)
		if err != nil {
			return err
		}

		mem, closeMem, err := buildMemory(cfg)
		if err != nil {
			return err
		}
		defer closeMem()

		d := dispatch.New(backend, mem, composer.New(0), nil)
		reply, err := d.Dispatch(cmd.Context(), dispatch.Request{
			Prompt:    prompt,
			SessionID: sessionID,
		})
		if err != nil {
			return err
		}

		fmt.Println(reply.Text)
		if reply.Memory.Status == memory.WriteDegraded {
			printWarning("turn stored in plain session log (vector indexing failed)")
		}
		if reply.Memory.Status == memory.WriteFailed {
			printWarning("turn was not persisted: %v", reply.Memory.Err)
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().String("session", "", "session id for conversation memory")
}

// --- sessions ---

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage remembered sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/sessions")
		if err != nil {
			return err
		}

		var result struct {
			Sessions []struct {
				ID    string `json:"id"`
				Turns int    `json:"turns"`
			} `json:"sessions"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, s := range result.Sessions {
			fmt.Printf("%s  %d turns\n", colorize(colorCyan, s.ID), s.Turns)
		}
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's recorded turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/sessions/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result struct {
			ID    string `json:"id"`
			Turns []struct {
				Timestamp string `json:"timestamp"`
				Prompt    string `json:"prompt"`
				Response  string `json:"response"`
			} `json:"turns"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, t := range result.Turns {
			fmt.Printf("%s\n", colorize(colorBold, t.Timestamp))
			fmt.Printf("  User: %s\n", t.Prompt)
			fmt.Printf("  Assistant: %s\n\n", t.Response)
		}
		return nil
	},
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear [id]",
	Short: "Clear one session, or all with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if !all && len(args) == 0 {
			return fmt.Errorf("session id required (or --all)")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/api/sessions"
		if !all {
			path += "/" + url.PathEscape(args[0])
		}
		resp, err := client.delete(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if all {
			printSuccess("Cleared all sessions")
		} else {
			printSuccess("Cleared session %s", args[0])
		}
		return nil
	},
}

func init() {
	sessionsClearCmd.Flags().Bool("all", false, "clear every session")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsClearCmd)
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search remembered turns by similarity (vector memory only)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/api/recall?q=%s&limit=%d", url.QueryEscape(query), limit)
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Mode    string `json:"mode"`
			Results []struct {
				Timestamp string `json:"timestamp"`
				Prompt    string `json:"prompt"`
				Response  string `json:"response"`
			} `json:"results"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Mode != memory.ModeVector {
			printWarning("recall needs vector memory (current mode: %s)", result.Mode)
			return nil
		}
		if len(result.Results) == 0 {
			fmt.Println("No results found.")
			return nil
		}

		for i, r := range result.Results {
			fmt.Printf("\n%s  %s\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Timestamp)
			fmt.Printf("  User: %s\n", r.Prompt)
			fmt.Printf("  Assistant: %s\n", r.Response)
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().Int("limit", 5, "maximum number of results")
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
