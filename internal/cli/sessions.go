package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/httpclient"
)

// SessionInfo mirrors the server's session representation.
type SessionInfo struct {
	SessionID       string  `json:"sessionId"`
	UserID          string  `json:"userId"`
	Module          string  `json:"module"`
	Activity        string  `json:"activity"`
	Category        string  `json:"category"`
	Status          string  `json:"status"`
	StartTime       string  `json:"startTime"`
	EndTime         *string `json:"endTime,omitempty"`
	DurationMinutes int     `json:"durationMinutes"`
	PausedMinutes   int     `json:"pausedMinutes"`
	Approved        bool    `json:"approved"`
	Invoiced        bool    `json:"invoiced"`
}

// CloseAllResult mirrors the server's close-all response.
type CloseAllResult struct {
	ClosedCount          int `json:"closedCount"`
	TotalDurationMinutes int `json:"totalDurationMinutes"`
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage work sessions",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsActiveCmd())
	cmd.AddCommand(newSessionsCloseAllCmd())
	return cmd
}

func newSessionsListCmd() *cobra.Command {
	var userID string
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, optionally filtered by user and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if userID != "" {
				params["user_id"] = userID
			}
			if status != "" {
				params["status"] = status
			}

			client := httpclient.NewClient(serverURL)
			body, _, err := client.DoRequest(httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        "sessions",
				QueryParams: params,
			})
			if err != nil {
				return err
			}

			var sessions []SessionInfo
			if err := json.Unmarshal(body, &sessions); err != nil {
				return fmt.Errorf("unable to parse server response: %v", err)
			}

			if jsonOutput {
				printJSON(sessions)
				return nil
			}
			if len(sessions) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}
			for _, s := range sessions {
				printSession(s)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Filter by user ID")
	cmd.Flags().StringVarP(&status, "status", "", "", "Filter by status (active, paused, completed, interrupted)")
	return cmd
}

func newSessionsActiveCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "active",
		Short: "Show the active session of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}

			client := httpclient.NewClient(serverURL)
			body, _, err := client.DoRequest(httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        "sessions/active",
				QueryParams: map[string]string{"user_id": userID},
			})
			if err != nil {
				if httpErr, ok := err.(*httpclient.HTTPError); ok && httpErr.StatusCode == http.StatusNotFound {
					if jsonOutput {
						printJSON(map[string]string{"status": "none"})
					} else {
						fmt.Printf("No active session for %s.\n", userID)
					}
					return nil
				}
				return err
			}

			var session SessionInfo
			if err := json.Unmarshal(body, &session); err != nil {
				return fmt.Errorf("unable to parse server response: %v", err)
			}
			if jsonOutput {
				printJSON(session)
			} else {
				printSession(session)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID")
	return cmd
}

func newSessionsCloseAllCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "close-all",
		Short: "Complete every open session, optionally scoped to one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			reqBody := []byte("{}")
			if userID != "" {
				var err error
				reqBody, err = json.Marshal(map[string]string{"userId": userID})
				if err != nil {
					return err
				}
			}

			client := httpclient.NewClient(serverURL)
			body, _, err := client.DoRequest(httpclient.RequestOptions{
				Method: http.MethodPost,
				Path:   "sessions/close-all",
				Body:   reqBody,
			})
			if err != nil {
				return err
			}

			var result CloseAllResult
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("unable to parse server response: %v", err)
			}
			if jsonOutput {
				printJSON(result)
				return nil
			}
			okLabel.Printf("Closed %d session(s), %d minute(s) total.\n",
				result.ClosedCount, result.TotalDurationMinutes)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only close sessions of this user")
	return cmd
}

func printSession(s SessionInfo) {
	label := okLabel
	switch s.Status {
	case "interrupted":
		label = errorLabel
	case "paused":
		label = warnLabel
	}
	label.Printf("%-12s", s.Status)
	fmt.Printf(" %s  %-10s %s", s.SessionID, s.UserID, s.Activity)
	if s.DurationMinutes > 0 {
		fmt.Printf("  (%d min)", s.DurationMinutes)
	}
	if s.Invoiced {
		fmt.Printf("  [invoiced]")
	} else if s.Approved {
		fmt.Printf("  [approved]")
	}
	fmt.Println()
}
