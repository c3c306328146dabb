package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/httpclient"
)

const cliVersion = "0.3.0"

// VersionResponse mirrors the server's version endpoint.
type VersionResponse struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show CLI and server versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := httpclient.NewClient(serverURL)
			body, _, err := client.DoRequest(httpclient.RequestOptions{
				Method: http.MethodGet,
				Path:   "version",
			})

			if err != nil {
				if jsonOutput {
					printJSON(map[string]string{
						"version_cli": cliVersion,
						"error":       "Unable to connect to server: " + err.Error(),
					})
				} else {
					fmt.Printf("trackctl %s\n", cliVersion)
					warnLabel.Printf("Server unreachable: %v\n", err)
				}
				return nil
			}

			var version VersionResponse
			if err := json.Unmarshal(body, &version); err != nil {
				return fmt.Errorf("unable to parse server response: %v", err)
			}
			if jsonOutput {
				printJSON(map[string]string{
					"version_cli":    cliVersion,
					"version_server": version.ServerVersion,
					"version_api":    version.ApiVersion,
				})
				return nil
			}
			fmt.Printf("trackctl %s\n", cliVersion)
			fmt.Printf("%s (API %s)\n", version.ServerVersion, version.ApiVersion)
			return nil
		},
	}
}
