package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ade/warden/internal/scheduler"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show fleet-wide aggregate status",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		var st scheduler.Stats
		if err := client.get("/api/v1/status", &st); err != nil {
			fail(err)
		}
		if statusJSON {
			printJSON(st)
			return
		}

		fmt.Printf("Agents: %d registered\n", st.RegisteredAgents)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for s, n := range st.AgentsByStatus {
			fmt.Fprintf(w, "  %s\t%d\n", s, n)
		}
		w.Flush()
		fmt.Println("Health:")
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for h, n := range st.AgentsByHealth {
			fmt.Fprintf(w, "  %s\t%d\n", h, n)
		}
		w.Flush()
		fmt.Printf("Tasks: %d queued, %d running\n", st.QueueDepth, st.RunningTasks)
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for s, n := range st.TasksByStatus {
			fmt.Fprintf(w, "  %s\t%d\n", s, n)
		}
		w.Flush()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output JSON")
	rootCmd.AddCommand(statusCmd)
}
