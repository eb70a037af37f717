package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long:  `Query the running Loom server's health endpoint and job counters.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 3 * time.Second}
	base := fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Status: stopped")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(cmd.OutOrStdout(), "Status: unhealthy (%s)\n", resp.Status)
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Status: running")

	req, err := http.NewRequest(http.MethodGet, base+"/api/jobs", nil)
	if err != nil {
		return err
	}
	if cfg.Server.SharedSecret != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Server.SharedSecret)
	}

	statsResp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer statsResp.Body.Close()
	if statsResp.StatusCode != http.StatusOK {
		return nil
	}

	var stats map[string]int
	if err := json.NewDecoder(statsResp.Body).Decode(&stats); err != nil {
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued: %d\n", stats["queued"])
	fmt.Fprintf(cmd.OutOrStdout(), "Running: %d\n", stats["running"])
	fmt.Fprintf(cmd.OutOrStdout(), "Workers: %d\n", stats["workers"])

	return nil
}
