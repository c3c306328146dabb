// Package cli implements the trackctl command line interface. trackctl is the
// operator tool for the tracking server: listing sessions, force-closing open
// work, approving and invoicing completed sessions, and reading stats.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	jsonOutput bool
	serverURL  string
)

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)
var warnLabel = color.New(color.FgYellow)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "trackctl [command] [flags]",
	Short: "trackctl - operator CLI for the work session tracking server",
	Long: `trackctl is the operator command line interface for the work session
tracking server. It talks to the server's HTTP API.

Examples:
  # List all sessions of a user
  trackctl sessions list --user usr-1

  # Show the active session of a user
  trackctl sessions active --user usr-1

  # Close all open sessions
  trackctl sessions close-all

  # Approve a completed session for invoicing
  trackctl billing approve <session-id>

  # Show aggregate stats
  trackctl stats`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8195", "Tracking server URL")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newBillingCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true // Prevent Cobra from printing the error
	rootCmd.SilenceUsage = true  // Prevent Cobra from printing usage on error

	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(map[string]string{"error": err.Error()})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to render output: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
