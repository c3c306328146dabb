package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/httpclient"
)

// StatsResponse mirrors the server's stats representation.
type StatsResponse struct {
	TotalSessions       int            `json:"totalSessions"`
	ActiveSessions      int            `json:"activeSessions"`
	TotalMinutes        int            `json:"totalMinutes"`
	TodayMinutes        int            `json:"todayMinutes"`
	AvgCompletedMinutes float64        `json:"avgCompletedMinutes"`
	SuccessRate         float64        `json:"successRate"`
	StatusStats         map[string]int `json:"statusStats"`
	CategoryStats       map[string]int `json:"categoryStats"`
	ModuleStats         map[string]int `json:"moduleStats"`
	TriggerStats        map[string]int `json:"triggerStats"`
}

func newStatsCmd() *cobra.Command {
	var userID string
	var category string
	var from string
	var to string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate session statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := map[string]string{}
			if userID != "" {
				params["user_id"] = userID
			}
			if category != "" {
				params["category"] = category
			}
			if from != "" {
				params["from"] = from
			}
			if to != "" {
				params["to"] = to
			}

			client := httpclient.NewClient(serverURL)
			body, _, err := client.DoRequest(httpclient.RequestOptions{
				Method:      http.MethodGet,
				Path:        "stats",
				QueryParams: params,
			})
			if err != nil {
				return err
			}

			var stats StatsResponse
			if err := json.Unmarshal(body, &stats); err != nil {
				return fmt.Errorf("unable to parse server response: %v", err)
			}
			if jsonOutput {
				printJSON(stats)
				return nil
			}

			fmt.Printf("Sessions:   %d total, %d active\n", stats.TotalSessions, stats.ActiveSessions)
			fmt.Printf("Time:       %d min total, %d min today\n", stats.TotalMinutes, stats.TodayMinutes)
			fmt.Printf("Completed:  %.1f min average, %.0f%% success rate\n",
				stats.AvgCompletedMinutes, stats.SuccessRate*100)
			printBreakdown("By status", stats.StatusStats)
			printBreakdown("By category", stats.CategoryStats)
			printBreakdown("By module", stats.ModuleStats)
			printBreakdown("By trigger", stats.TriggerStats)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Filter by user ID")
	cmd.Flags().StringVarP(&category, "category", "c", "", "Filter by category")
	cmd.Flags().StringVarP(&from, "from", "", "", "Start time filter (RFC3339)")
	cmd.Flags().StringVarP(&to, "to", "", "", "End time filter (RFC3339, exclusive)")
	return cmd
}

func printBreakdown(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}
