package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ade/warden/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate and reload the fleet plan",
}

var planValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a fleet plan file without loading it into the daemon",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := loadConfig()
			if err != nil {
				fail(err)
			}
			path = cfg.Daemon.PlanPath
		}
		pl, err := plan.Load(path)
		if err != nil {
			fail(err)
		}
		fmt.Printf("Plan OK: %d agents, %d windows, %d rules\n",
			len(pl.Agents), len(pl.Windows), len(pl.Rules))
	},
}

var planReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Ask the running daemon to reload its fleet plan",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		if err := client.post("/api/v1/plan/reload", nil, nil); err != nil {
			fail(err)
		}
		fmt.Println("Plan reloaded")
	},
}

func init() {
	planCmd.AddCommand(planValidateCmd)
	planCmd.AddCommand(planReloadCmd)
	rootCmd.AddCommand(planCmd)
}
