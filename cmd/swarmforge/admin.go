package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

const defaultAdminAddr = "http://localhost:8080"

// runAdmin dispatches admin subcommands (spawn, list, health, rebalance).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "spawn":
		return runAdminSpawn(args[1:])
	case "list":
		return runAdminList(args[1:])
	case "health":
		return runAdminHealth(args[1:])
	case "rebalance":
		return runAdminRebalance(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: swarmforge admin <command> [options]

Commands:
  spawn       Spawn an agent in a pool
  list        List pools (and agents with --verbose)
  health      Show control plane health
  rebalance   Force a dispatch pass and scaling evaluation
  help        Show this help message

Examples:
  swarmforge admin spawn --pool builders
  swarmforge admin spawn --pool builders --capabilities go,rust
  swarmforge admin list --verbose
  swarmforge admin health
  swarmforge admin rebalance
`)
}

// adminClient is a thin JSON client for the admin API.
type adminClient struct {
	addr string
	hc   *http.Client
}

func newAdminClient(addr string) *adminClient {
	return &adminClient{addr: strings.TrimRight(addr, "/"), hc: &http.Client{Timeout: 30 * time.Second}}
}

func (c *adminClient) do(method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.addr+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runAdminSpawn(args []string) error {
	fs := flag.NewFlagSet("spawn", flag.ContinueOnError)
	addr := fs.String("addr", defaultAdminAddr, "admin API address")
	poolName := fs.String("pool", "", "target pool name (required)")
	caps := fs.String("capabilities", "", "comma-separated capability overrides")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *poolName == "" {
		return fmt.Errorf("--pool is required")
	}

	var capabilities []string
	if *caps != "" {
		for _, c := range strings.Split(*caps, ",") {
			if c = strings.TrimSpace(c); c != "" {
				capabilities = append(capabilities, c)
			}
		}
	}

	var a struct {
		ID           string   `json:"id"`
		Pool         string   `json:"pool"`
		Capabilities []string `json:"capabilities"`
		Status       string   `json:"status"`
	}
	client := newAdminClient(*addr)
	if err := client.do(http.MethodPost, "/api/v1/pools/"+*poolName+"/agents",
		map[string]any{"capabilities": capabilities}, &a); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Agent spawned: %s (pool=%s, status=%s, capabilities=%s)\n",
		a.ID, a.Pool, a.Status, strings.Join(a.Capabilities, ","))
	return nil
}

func runAdminList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	addr := fs.String("addr", defaultAdminAddr, "admin API address")
	verbose := fs.Bool("verbose", false, "also list agents per pool")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := newAdminClient(*addr)

	var pools []struct {
		Name             string   `json:"name"`
		CapabilityFilter []string `json:"capability_filter"`
		MinAgents        int      `json:"min_agents"`
		MaxAgents        int      `json:"max_agents"`
		IdleAgents       int      `json:"idle_agents"`
		BusyAgents       int      `json:"busy_agents"`
		QueueDepth       int      `json:"queue_depth"`
	}
	if err := client.do(http.MethodGet, "/api/v1/pools", nil, &pools); err != nil {
		return err
	}

	if len(pools) == 0 {
		fmt.Println("No pools registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POOL\tCAPABILITIES\tMIN\tMAX\tIDLE\tBUSY\tQUEUED")
	for _, p := range pools {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			p.Name, strings.Join(p.CapabilityFilter, ","), p.MinAgents, p.MaxAgents,
			p.IdleAgents, p.BusyAgents, p.QueueDepth)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if !*verbose {
		return nil
	}

	var agents []struct {
		ID             string   `json:"id"`
		Pool           string   `json:"pool"`
		Capabilities   []string `json:"capabilities"`
		Status         string   `json:"status"`
		CurrentTask    string   `json:"current_task,omitempty"`
		TasksCompleted int      `json:"tasks_completed"`
	}
	if err := client.do(http.MethodGet, "/api/v1/agents", nil, &agents); err != nil {
		return err
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGENT\tPOOL\tSTATUS\tTASK\tCOMPLETED\tCAPABILITIES")
	for _, a := range agents {
		taskID := a.CurrentTask
		if taskID == "" {
			taskID = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			a.ID, a.Pool, a.Status, taskID, a.TasksCompleted, strings.Join(a.Capabilities, ","))
	}
	return w.Flush()
}

func runAdminHealth(args []string) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", defaultAdminAddr, "admin API address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var status struct {
		Status      string `json:"status"`
		NATS        string `json:"nats"`
		HostBreaker string `json:"host_breaker"`
		QueuedTasks int    `json:"queued_tasks"`
		Agents      int    `json:"agents"`
		WSClients   int    `json:"ws_clients"`
	}
	if err := newAdminClient(*addr).do(http.MethodGet, "/health", nil, &status); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "STATUS\t%s\n", status.Status)
	_, _ = fmt.Fprintf(w, "NATS\t%s\n", status.NATS)
	_, _ = fmt.Fprintf(w, "HOST BREAKER\t%s\n", status.HostBreaker)
	_, _ = fmt.Fprintf(w, "QUEUED TASKS\t%d\n", status.QueuedTasks)
	_, _ = fmt.Fprintf(w, "AGENTS\t%d\n", status.Agents)
	_, _ = fmt.Fprintf(w, "WS CLIENTS\t%d\n", status.WSClients)
	if err := w.Flush(); err != nil {
		return err
	}

	if status.Status != "ok" {
		return fmt.Errorf("control plane is %s", status.Status)
	}
	return nil
}

func runAdminRebalance(args []string) error {
	fs := flag.NewFlagSet("rebalance", flag.ContinueOnError)
	addr := fs.String("addr", defaultAdminAddr, "admin API address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := newAdminClient(*addr).do(http.MethodPost, "/api/v1/rebalance", nil, nil); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Rebalance triggered")
	return nil
}
