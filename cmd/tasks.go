package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ade/warden/internal/models"
)

var (
	tasksJSON     bool
	tasksStatus   string
	tasksAgent    string
	tasksPriority string
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and manage queued tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		var resp struct {
			Items []models.Task `json:"items"`
		}
		path := "/api/v1/tasks"
		params := []string{}
		if tasksStatus != "" {
			params = append(params, "status="+tasksStatus)
		}
		if tasksAgent != "" {
			params = append(params, "agent="+tasksAgent)
		}
		if tasksPriority != "" {
			params = append(params, "priority="+tasksPriority)
		}
		if len(params) > 0 {
			path += "?" + strings.Join(params, "&")
		}
		if err := client.get(path, &resp); err != nil {
			fail(err)
		}
		if tasksJSON {
			printJSON(resp.Items)
			return
		}
		if len(resp.Items) == 0 {
			fmt.Println("No tasks")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tSTATUS\tAGENT\tERRORS")
		for _, t := range resp.Items {
			agent := t.Agent
			if agent == "" {
				agent = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
				shortID(t.ID), t.Name, t.Priority, t.Status, agent, t.ErrorCount)
		}
		w.Flush()
	},
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show full detail for one task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		var t models.Task
		if err := client.get("/api/v1/tasks/"+args[0], &t); err != nil {
			fail(err)
		}
		printJSON(t)
	},
}

func taskActionCmd(verb, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			client, err := newClient()
			if err != nil {
				fail(err)
			}
			var t models.Task
			if err := client.post("/api/v1/tasks/"+args[0]+"/"+path, nil, &t); err != nil {
				fail(err)
			}
			fmt.Printf("Task %s: %s\n", shortID(t.ID), t.Status)
		},
	}
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show pending tasks in dispatch order",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		var resp struct {
			Items []models.Task `json:"items"`
		}
		if err := client.get("/api/v1/queue", &resp); err != nil {
			fail(err)
		}
		if len(resp.Items) == 0 {
			fmt.Println("Queue is empty")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tID\tNAME\tPRIORITY\tSCHEDULED")
		for i, t := range resp.Items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				i+1, shortID(t.ID), t.Name, t.Priority, t.ScheduledFor.Format("2006-01-02 15:04"))
		}
		w.Flush()
	},
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	tasksListCmd.Flags().BoolVar(&tasksJSON, "json", false, "output JSON")
	tasksListCmd.Flags().StringVar(&tasksStatus, "status", "", "filter by status")
	tasksListCmd.Flags().StringVar(&tasksAgent, "agent", "", "filter by assigned agent")
	tasksListCmd.Flags().StringVar(&tasksPriority, "priority", "", "filter by priority")
	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)
	tasksCmd.AddCommand(taskActionCmd("cancel", "Cancel a pending or running task", "cancel"))
	tasksCmd.AddCommand(taskActionCmd("pause", "Pause a pending task", "pause"))
	tasksCmd.AddCommand(taskActionCmd("resume", "Resume a paused task", "resume"))
	tasksCmd.AddCommand(taskActionCmd("clear-failures", "Clear a task's recent failure history", "clear-failures"))
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(queueCmd)
}
