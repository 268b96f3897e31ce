package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var opsOutputFormat string

type routeCatalog struct {
	Route      string   `json:"route"`
	Operations []string `json:"operations"`
}

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "List the operations exposed by a running server",
	Long: `Fetch the operation catalog from a running tickstream server.

Examples:
  tickstream-cli ops                       # table output
  tickstream-cli ops --format json         # raw catalog JSON
  tickstream-cli ops --addr broker:9000    # non-default server`,
	RunE: opsHandler,
}

func opsHandler(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + serverAddr + "/api/operations")
	if err != nil {
		return fmt.Errorf("fetch catalog from %s: %w", serverAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	var catalog []routeCatalog
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return fmt.Errorf("decode catalog: %w", err)
	}

	if opsOutputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog)
	}

	fmt.Printf("%-12s %s\n", "ROUTE", "OPERATIONS")
	for _, rc := range catalog {
		fmt.Printf("%-12s %s\n", rc.Route, strings.Join(rc.Operations, ", "))
	}
	return nil
}

func init() {
	opsCmd.Flags().StringVar(&opsOutputFormat, "format", "table", "output format: table or json")
	rootCmd.AddCommand(opsCmd)
}
