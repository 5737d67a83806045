package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ade/warden/internal/models"
)

var (
	agentsJSON       bool
	agentsCapability string
	agentsStatus     string
	agentsHealth     string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Inspect and manage fleet agents",
}

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		var resp struct {
			Items []models.Agent `json:"items"`
		}
		path := "/api/v1/agents"
		params := []string{}
		if agentsCapability != "" {
			params = append(params, "capability="+agentsCapability)
		}
		if agentsStatus != "" {
			params = append(params, "status="+agentsStatus)
		}
		if agentsHealth != "" {
			params = append(params, "health="+agentsHealth)
		}
		if len(params) > 0 {
			path += "?" + strings.Join(params, "&")
		}
		if err := client.get(path, &resp); err != nil {
			fail(err)
		}
		if agentsJSON {
			printJSON(resp.Items)
			return
		}
		if len(resp.Items) == 0 {
			fmt.Println("No agents registered")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tHEALTH\tCAPABILITIES\tLAST HEARTBEAT\tDONE\tFAILED")
		for _, a := range resp.Items {
			hb := "never"
			if !a.LastHeartbeat.IsZero() {
				hb = time.Since(a.LastHeartbeat).Round(time.Second).String() + " ago"
			}
			name := a.Name
			if a.Retired {
				name += " (retired)"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
				name, a.Status, a.Health, strings.Join(a.Capabilities, ","), hb,
				a.TasksCompleted, a.TasksFailed)
		}
		w.Flush()
	},
}

var agentsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show full detail for one agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		var a models.Agent
		if err := client.get("/api/v1/agents/"+args[0], &a); err != nil {
			fail(err)
		}
		printJSON(a)
	},
}

var agentsRetireCmd = &cobra.Command{
	Use:   "retire <name>",
	Short: "Exclude an agent from dispatch without removing it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		if err := client.post("/api/v1/agents/"+args[0]+"/retire", nil, nil); err != nil {
			fail(err)
		}
		fmt.Printf("Agent '%s' retired\n", args[0])
	},
}

var agentsUnretireCmd = &cobra.Command{
	Use:   "unretire <name>",
	Short: "Return a retired agent to dispatch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		if err := client.post("/api/v1/agents/"+args[0]+"/unretire", nil, nil); err != nil {
			fail(err)
		}
		fmt.Printf("Agent '%s' back in rotation\n", args[0])
	},
}

var agentsRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Unregister an agent",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client, err := newClient()
		if err != nil {
			fail(err)
		}
		if err := client.delete("/api/v1/agents/" + args[0]); err != nil {
			fail(err)
		}
		fmt.Printf("Agent '%s' removed\n", args[0])
	},
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func init() {
	agentsListCmd.Flags().BoolVar(&agentsJSON, "json", false, "output JSON")
	agentsListCmd.Flags().StringVar(&agentsCapability, "capability", "", "filter by capability tag")
	agentsListCmd.Flags().StringVar(&agentsStatus, "status", "", "filter by status")
	agentsListCmd.Flags().StringVar(&agentsHealth, "health", "", "filter by health")
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsShowCmd)
	agentsCmd.AddCommand(agentsRetireCmd)
	agentsCmd.AddCommand(agentsUnretireCmd)
	agentsCmd.AddCommand(agentsRemoveCmd)
	rootCmd.AddCommand(agentsCmd)
}
