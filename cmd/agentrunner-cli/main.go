// Package main provides a CLI for interacting with the agentrunner server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	apiKey     string
	configPath string
)

// Config represents the CLI configuration
type Config struct {
	ServerURL string `json:"server_url"`
	APIKey    string `json:"api_key,omitempty"`
}

func main() {
	// Root command
	rootCmd := &cobra.Command{
		Use:   "agentrunner-cli",
		Short: "AgentRunner CLI",
		Long:  "Command-line interface for interacting with the AgentRunner server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load config if not explicitly provided
			if serverURL == "" || apiKey == "" {
				loadConfig()
			}
			if serverURL == "" {
				serverURL = "http://localhost:8080"
			}
			serverURL = strings.TrimSuffix(serverURL, "/")
		},
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	// Agent commands
	agentCmd := &cobra.Command{
		Use:   "agent",
		Short: "Agent catalog",
	}

	agentListCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered agents",
		Run:   listAgents,
	}

	agentGetCmd := &cobra.Command{
		Use:   "get [id]",
		Short: "Show one agent's configuration",
		Args:  cobra.ExactArgs(1),
		Run:   getAgent,
	}

	agentCmd.AddCommand(agentListCmd, agentGetCmd)

	// Run command
	runCmd := &cobra.Command{
		Use:   "run [agent-id]",
		Short: "Submit a prompt to an agent",
		Args:  cobra.ExactArgs(1),
		Run:   runAgent,
	}
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "Prompt text")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Parameter as key=value (repeatable)")
	runCmd.Flags().BoolVar(&runWait, "wait", false, "Poll until the execution reaches a terminal status")

	// History commands
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Execution history",
	}

	historyListCmd := &cobra.Command{
		Use:   "list [agent-id]",
		Short: "List an agent's executions",
		Args:  cobra.ExactArgs(1),
		Run:   listHistory,
	}

	historyClearCmd := &cobra.Command{
		Use:   "clear [agent-id]",
		Short: "Clear an agent's executions",
		Args:  cobra.ExactArgs(1),
		Run:   clearHistory,
	}

	historyExportCmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export all stored history to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		Run:   exportHistory,
	}

	historyImportCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import history from an export file",
		Args:  cobra.ExactArgs(1),
		Run:   importHistory,
	}

	historyCmd.AddCommand(historyListCmd, historyClearCmd, historyExportCmd, historyImportCmd)

	// Preference commands
	prefsCmd := &cobra.Command{
		Use:   "prefs",
		Short: "User preferences",
	}

	prefsGetCmd := &cobra.Command{
		Use:   "get",
		Short: "Show stored preferences",
		Run:   getPrefs,
	}

	prefsSetCmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set one preference value",
		Args:  cobra.ExactArgs(2),
		Run:   setPref,
	}

	prefsCmd.AddCommand(prefsGetCmd, prefsSetCmd)

	// Health command
	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check server and engine health",
		Run:   checkHealth,
	}

	// Add commands to root
	rootCmd.AddCommand(agentCmd, runCmd, historyCmd, prefsCmd, healthCmd)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// Run command flags
var (
	runPrompt string
	runParams []string
	runWait   bool
)

// loadConfig loads the CLI configuration
func loadConfig() {
	// If a config path is specified, use it
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".agentrunner", "cli.json")
		}
	}

	// If the config file doesn't exist, return
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return
	}

	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Printf("Warning: Failed to read config file: %v\n", err)
		return
	}

	// Parse the config
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		fmt.Printf("Warning: Failed to parse config file: %v\n", err)
		return
	}

	// Set values if not explicitly provided
	if serverURL == "" {
		serverURL = config.ServerURL
	}
	if apiKey == "" {
		apiKey = config.APIKey
	}
}

// sendRequest performs one API call and returns the response body. A
// transport failure or a non-2xx answer prints the error and exits.
func sendRequest(method string, path string, payload interface{}) []byte {
	// Build the request body
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(data)
	}

	// Create request
	req, err := http.NewRequest(method, serverURL+path, reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	// Send request; executions can take a while, so no client timeout
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	// Read response
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Check response status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		fmt.Printf("Error: %s\n", apiErrorMessage(body))
		os.Exit(1)
	}

	return body
}

// apiErrorMessage extracts the message from an API error body, falling
// back to the raw body
func apiErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("%s (%s)", parsed.Error.Message, parsed.Error.Code)
	}
	return string(body)
}

// printJSON pretty-prints a JSON response body
func printJSON(body []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}

// listAgents lists the registered agents
func listAgents(cmd *cobra.Command, args []string) {
	body := sendRequest(http.MethodGet, "/api/v1/agents", nil)

	var agents []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Enabled *bool  `json:"enabled"`
		Output  struct {
			Type string `json:"type"`
		} `json:"outputSchema"`
	}
	if err := json.Unmarshal(body, &agents); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(agents) == 0 {
		fmt.Println("No agents registered")
		return
	}

	fmt.Println("ID\tNAME\tOUTPUT\tENABLED")
	for _, a := range agents {
		enabled := "yes"
		if a.Enabled != nil && !*a.Enabled {
			enabled = "no"
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", a.ID, a.Name, a.Output.Type, enabled)
	}
}

// getAgent shows one agent's configuration
func getAgent(cmd *cobra.Command, args []string) {
	body := sendRequest(http.MethodGet, "/api/v1/agents/"+args[0], nil)
	printJSON(body)
}

// runAgent submits a prompt to an agent and prints the execution
func runAgent(cmd *cobra.Command, args []string) {
	input := map[string]interface{}{}
	if runPrompt != "" {
		input["prompt"] = runPrompt
	}

	// Collect --param key=value pairs; values that parse as JSON keep
	// their type, everything else stays a string
	if len(runParams) > 0 {
		params := map[string]interface{}{}
		for _, pair := range runParams {
			key, value, found := strings.Cut(pair, "=")
			if !found || key == "" {
				fmt.Printf("Error: invalid --param %q, expected key=value\n", pair)
				os.Exit(1)
			}
			var parsed interface{}
			if err := json.Unmarshal([]byte(value), &parsed); err == nil {
				params[key] = parsed
			} else {
				params[key] = value
			}
		}
		input["parameters"] = params
	}

	body := sendRequest(http.MethodPost, "/api/v1/agents/"+args[0]+"/executions", input)

	var exec struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &exec); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Optionally poll the execution until it leaves processing
	if runWait {
		for exec.Status == "pending" || exec.Status == "processing" {
			time.Sleep(2 * time.Second)
			body = sendRequest(http.MethodGet, "/api/v1/executions/"+exec.ID, nil)
			if err := json.Unmarshal(body, &exec); err != nil {
				fmt.Printf("Error: %v\n", err)
				os.Exit(1)
			}
		}
	}

	printJSON(body)
}

// listHistory lists an agent's executions
func listHistory(cmd *cobra.Command, args []string) {
	body := sendRequest(http.MethodGet, "/api/v1/agents/"+args[0]+"/executions", nil)

	var execs []struct {
		ID        string    `json:"id"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"createdAt"`
		Input     struct {
			Prompt string `json:"prompt"`
		} `json:"input"`
	}
	if err := json.Unmarshal(body, &execs); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if len(execs) == 0 {
		fmt.Println("No executions found")
		return
	}

	fmt.Println("ID\tSTATUS\tCREATED\tPROMPT")
	for _, e := range execs {
		prompt := e.Input.Prompt
		if len(prompt) > 40 {
			prompt = prompt[:37] + "..."
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", e.ID, e.Status, e.CreatedAt.Format(time.RFC3339), prompt)
	}
}

// clearHistory clears an agent's executions
func clearHistory(cmd *cobra.Command, args []string) {
	sendRequest(http.MethodDelete, "/api/v1/agents/"+args[0]+"/executions", nil)
	fmt.Printf("History cleared for agent %s\n", args[0])
}

// exportHistory writes the full history export to a file or stdout
func exportHistory(cmd *cobra.Command, args []string) {
	body := sendRequest(http.MethodGet, "/api/v1/history/export", nil)

	if len(args) == 0 {
		printJSON(body)
		return
	}

	if err := os.WriteFile(args[0], body, 0644); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("History exported to %s\n", args[0])
}

// importHistory restores history from an export file
func importHistory(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		fmt.Printf("Error: %s is not a valid export file: %v\n", args[0], err)
		os.Exit(1)
	}

	body := sendRequest(http.MethodPost, "/api/v1/history/import", doc)

	var result struct {
		Imported int `json:"imported"`
		Skipped  int `json:"skipped"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported %d keys (%d skipped)\n", result.Imported, result.Skipped)
}

// getPrefs shows the stored preferences
func getPrefs(cmd *cobra.Command, args []string) {
	body := sendRequest(http.MethodGet, "/api/v1/preferences", nil)
	printJSON(body)
}

// setPref updates one preference key, leaving the rest untouched
func setPref(cmd *cobra.Command, args []string) {
	body := sendRequest(http.MethodGet, "/api/v1/preferences", nil)

	var prefs map[string]interface{}
	if err := json.Unmarshal(body, &prefs); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if prefs == nil {
		prefs = map[string]interface{}{}
	}

	// Values that parse as JSON keep their type
	var parsed interface{}
	if err := json.Unmarshal([]byte(args[1]), &parsed); err == nil {
		prefs[args[0]] = parsed
	} else {
		prefs[args[0]] = args[1]
	}

	sendRequest(http.MethodPut, "/api/v1/preferences", prefs)
	fmt.Printf("Preference %s updated\n", args[0])
}

// checkHealth reports server and engine availability
func checkHealth(cmd *cobra.Command, args []string) {
	// Health answers 503 when the engine is down, so check the status
	// ourselves instead of going through sendRequest
	req, err := http.NewRequest(http.MethodGet, serverURL+"/api/v1/health", nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	printJSON(body)
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}
