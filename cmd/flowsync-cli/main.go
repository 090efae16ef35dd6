// Package main provides a CLI for interacting with the flowsync server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL  string
	username   string
	password   string
	token      string
	configPath string
)

// Config represents the CLI configuration
type Config struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Token     string `json:"token"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowsync-cli",
		Short: "flowsync CLI",
		Long:  "Command-line interface for interacting with the flowsync server",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if serverURL == "" || (username == "" && token == "") {
				loadConfig()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server URL")
	rootCmd.PersistentFlags().StringVar(&username, "username", "", "Username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "", "Password")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	rootCmd.AddCommand(loginCmd())

	// Account commands
	accountCmd := &cobra.Command{Use: "account", Short: "Account management"}
	accountCmd.AddCommand(
		&cobra.Command{Use: "create", Short: "Create a new account", Run: createAccount},
		&cobra.Command{Use: "info", Short: "Get account information", Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/accounts/me", nil))
		}},
	)

	// Integration commands
	integrationCmd := &cobra.Command{Use: "integration", Short: "Integration management"}
	integrationCreateCmd := &cobra.Command{
		Use:   "create [name] [instance-url] [api-key]",
		Short: "Connect an n8n instance",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodPost, "/api/v1/integrations", map[string]string{
				"name":         args[0],
				"instance_url": args[1],
				"api_key":      args[2],
			}))
		},
	}
	integrationCmd.AddCommand(
		integrationCreateCmd,
		&cobra.Command{Use: "list", Short: "List integrations", Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/integrations", nil))
		}},
		&cobra.Command{Use: "verify [id]", Short: "Verify an integration's connection", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodPost, "/api/v1/integrations/"+args[0]+"/verify", nil))
		}},
		&cobra.Command{Use: "sync [id]", Short: "Sync workflows from an integration", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodPost, "/api/v1/integrations/"+args[0]+"/sync", nil))
		}},
		&cobra.Command{Use: "delete [id]", Short: "Delete an integration", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodDelete, "/api/v1/integrations/"+args[0], nil)
			fmt.Println("Integration deleted")
		}},
	)

	// Workflow commands
	workflowCmd := &cobra.Command{Use: "workflow", Short: "Workflow management"}
	workflowExecuteCmd := &cobra.Command{
		Use:   "execute [id] [input-file]",
		Short: "Execute a workflow, optionally with a JSON input file",
		Args:  cobra.RangeArgs(1, 2),
		Run:   executeWorkflow,
	}
	workflowCmd.AddCommand(
		&cobra.Command{Use: "list", Short: "List mirrored workflows", Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/workflows", nil))
		}},
		&cobra.Command{Use: "get [id]", Short: "Get a workflow", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/workflows/"+args[0], nil))
		}},
		workflowExecuteCmd,
		&cobra.Command{Use: "executions [id]", Short: "List a workflow's executions", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/workflows/"+args[0]+"/executions", nil))
		}},
	)

	// Execution commands
	executionCmd := &cobra.Command{Use: "execution", Short: "Execution management"}
	executionCmd.AddCommand(
		&cobra.Command{Use: "get [id]", Short: "Get an execution", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/executions/"+args[0], nil))
		}},
		&cobra.Command{Use: "poll [id]", Short: "Poll an execution until it finishes", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodPost, "/api/v1/executions/"+args[0]+"/poll", nil))
		}},
	)

	// Template commands
	templateCmd := &cobra.Command{Use: "template", Short: "Template catalog"}
	templateCmd.AddCommand(
		&cobra.Command{Use: "list", Short: "List templates", Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/templates", nil))
		}},
		&cobra.Command{Use: "install [template-id] [integration-id]", Short: "Install a template onto an integration", Args: cobra.ExactArgs(2), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodPost, "/api/v1/templates/"+args[0]+"/install", map[string]string{
				"integration_id": args[1],
			}))
		}},
	)

	// Schedule commands
	scheduleCmd := &cobra.Command{Use: "schedule", Short: "Sync schedules"}
	scheduleCmd.AddCommand(
		&cobra.Command{Use: "add [integration-id] [cron-spec]", Short: "Add a recurring sync", Args: cobra.ExactArgs(2), Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodPost, "/api/v1/schedules", map[string]string{
				"integration_id": args[0],
				"spec":           args[1],
			}))
		}},
		&cobra.Command{Use: "list", Short: "List sync schedules", Run: func(cmd *cobra.Command, args []string) {
			printResponse(doRequest(http.MethodGet, "/api/v1/schedules", nil))
		}},
		&cobra.Command{Use: "remove [id]", Short: "Remove a sync schedule", Args: cobra.ExactArgs(1), Run: func(cmd *cobra.Command, args []string) {
			doRequest(http.MethodDelete, "/api/v1/schedules/"+args[0], nil)
			fmt.Println("Schedule removed")
		}},
	)

	rootCmd.AddCommand(accountCmd, integrationCmd, workflowCmd, executionCmd, templateCmd, scheduleCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loginCmd builds the login command
func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and store a session token",
		Run: func(cmd *cobra.Command, args []string) {
			if username == "" {
				fmt.Print("Username: ")
				fmt.Scanln(&username)
			}
			if password == "" {
				fmt.Print("Password: ")
				fmt.Scanln(&password)
			}

			body := doRequest(http.MethodPost, "/api/v1/login", map[string]string{
				"username": username,
				"password": password,
			})

			var login struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(body, &login); err != nil || login.Token == "" {
				fmt.Println("Error: login response did not contain a token")
				os.Exit(1)
			}

			if err := saveConfig(Config{ServerURL: serverURL, Username: username, Token: login.Token}); err != nil {
				fmt.Printf("Warning: Failed to save config: %v\n", err)
			}
			fmt.Println("Logged in successfully")
		},
	}
}

// createAccount creates a new account
func createAccount(cmd *cobra.Command, args []string) {
	if username == "" {
		fmt.Print("Username: ")
		fmt.Scanln(&username)
	}
	if password == "" {
		fmt.Print("Password: ")
		fmt.Scanln(&password)
	}

	doRequest(http.MethodPost, "/api/v1/accounts", map[string]string{
		"username": username,
		"password": password,
	})
	fmt.Println("Account created successfully")

	if err := saveConfig(Config{ServerURL: serverURL, Username: username, Token: token}); err != nil {
		fmt.Printf("Warning: Failed to save config: %v\n", err)
	}
}

// executeWorkflow starts a tracked execution, reading input from a file when given
func executeWorkflow(cmd *cobra.Command, args []string) {
	payload := map[string]interface{}{}
	if len(args) == 2 {
		data, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		var input map[string]interface{}
		if err := json.Unmarshal(data, &input); err != nil {
			fmt.Printf("Error: invalid input file: %v\n", err)
			os.Exit(1)
		}
		payload["input"] = input
	}

	printResponse(doRequest(http.MethodPost, "/api/v1/workflows/"+args[0]+"/execute", payload))
}

// doRequest issues one authenticated request against the server and returns
// the response body. Any failure terminates the CLI.
func doRequest(method, path string, body interface{}) []byte {
	if serverURL == "" {
		fmt.Println("Error: Server URL is required")
		os.Exit(1)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, serverURL+path, reqBody)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Add authentication
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	} else if username != "" && password != "" {
		req.SetBasicAuth(username, password)
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode >= 300 {
		fmt.Printf("Error: %s\n", respBody)
		os.Exit(1)
	}

	return respBody
}

// printResponse pretty-prints a JSON response body
func printResponse(body []byte) {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(prettyJSON.String())
}

// loadConfig loads the CLI configuration
func loadConfig() {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(home, ".flowsync", "cli-config.json")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		fmt.Printf("Warning: Failed to read config file: %v\n", err)
		return
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		fmt.Printf("Warning: Failed to parse config file: %v\n", err)
		return
	}

	if serverURL == "" {
		serverURL = config.ServerURL
	}
	if username == "" && token == "" {
		username = config.Username
		token = config.Token
	}
}

// saveConfig saves the CLI configuration
func saveConfig(config Config) error {
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		configDir := filepath.Join(home, ".flowsync")
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "cli-config.json")
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
