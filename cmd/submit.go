package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ade/warden/internal/models"
)

var (
	submitMode       string
	submitAgent      string
	submitPriority   string
	submitCapability string
	submitWindow     string
	submitDailyCap   int
	submitWeeklyCap  int
	submitAt         string
	submitEstimated  string
)

var submitCmd = &cobra.Command{
	Use:   "submit <name>",
	Short: "Submit a task to the queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		body := map[string]any{
			"name":     args[0],
			"mode":     submitMode,
			"agent":    submitAgent,
			"priority": submitPriority,
			"constraints": models.Constraints{
				DailyCap:           submitDailyCap,
				WeeklyCap:          submitWeeklyCap,
				RequiredCapability: submitCapability,
				Window:             submitWindow,
			},
		}
		if submitAt != "" {
			at, err := time.Parse(time.RFC3339, submitAt)
			if err != nil {
				fail(fmt.Errorf("invalid --at (want RFC3339): %w", err))
			}
			body["scheduled_for"] = at
		}
		if submitEstimated != "" {
			body["estimated"] = submitEstimated
		}
		var t models.Task
		if err := client.post("/api/v1/tasks", body, &t); err != nil {
			fail(err)
		}
		fmt.Printf("Task %s submitted (%s, %s)\n", shortID(t.ID), t.Name, t.Priority)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitMode, "mode", "", "execution mode hint for the agent")
	submitCmd.Flags().StringVar(&submitAgent, "agent", "", "pin the task to one agent")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "normal", "critical|high|normal|low|maintenance")
	submitCmd.Flags().StringVar(&submitCapability, "capability", "", "required capability tag")
	submitCmd.Flags().StringVar(&submitWindow, "window", "", "named schedule window the task must run inside")
	submitCmd.Flags().IntVar(&submitDailyCap, "daily-cap", 0, "max completions per UTC day (0 = unlimited)")
	submitCmd.Flags().IntVar(&submitWeeklyCap, "weekly-cap", 0, "max completions per UTC week (0 = unlimited)")
	submitCmd.Flags().StringVar(&submitAt, "at", "", "earliest start time, RFC3339")
	submitCmd.Flags().StringVar(&submitEstimated, "estimated", "", "estimated duration, e.g. 45m")
	rootCmd.AddCommand(submitCmd)
}
