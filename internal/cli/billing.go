package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/httpclient"
)

func newBillingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Approve and invoice completed sessions",
	}
	cmd.AddCommand(newBillingApproveCmd())
	cmd.AddCommand(newBillingInvoiceCmd())
	return cmd
}

func newBillingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <session-id>",
		Short: "Approve a completed session for invoicing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqBody, err := json.Marshal(map[string]string{"sessionId": args[0]})
			if err != nil {
				return err
			}

			client := httpclient.NewClient(serverURL)
			body, _, err := client.DoRequest(httpclient.RequestOptions{
				Method: http.MethodPost,
				Path:   "billing/approve",
				Body:   reqBody,
			})
			if err != nil {
				return err
			}

			var session SessionInfo
			if err := json.Unmarshal(body, &session); err != nil {
				return fmt.Errorf("unable to parse server response: %v", err)
			}
			if jsonOutput {
				printJSON(session)
				return nil
			}
			okLabel.Printf("Approved session %s (%d min).\n", session.SessionID, session.DurationMinutes)
			return nil
		},
	}
}

func newBillingInvoiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoice <session-id> [session-id...]",
		Short: "Mark approved sessions as invoiced",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqBody, err := json.Marshal(map[string][]string{"sessionIds": args})
			if err != nil {
				return err
			}

			client := httpclient.NewClient(serverURL)
			body, _, err := client.DoRequest(httpclient.RequestOptions{
				Method: http.MethodPost,
				Path:   "billing/invoice",
				Body:   reqBody,
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
			total := 0
			for _, s := range sessions {
				total += s.DurationMinutes
			}
			okLabel.Printf("Invoiced %d session(s), %d minute(s) total.\n", len(sessions), total)
			return nil
		},
	}
}
