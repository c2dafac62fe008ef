package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/synapse/internal/client"
	"github.com/lazypower/synapse/internal/config"
	"github.com/lazypower/synapse/internal/engine"
	"github.com/lazypower/synapse/internal/graph"
)

var (
	outputJSON   bool
	statsOffline bool
	nodeProps    []string
	relStrength  float64
)

func init() {
	for _, c := range []*cobra.Command{queryCmd, statsCmd, cycleCmd, nodeAddCmd, relateCmd, traverseCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Print the raw JSON response")
	}
	statsCmd.Flags().BoolVar(&statsOffline, "offline", false, "Read row counts from the database instead of the server")
	nodeAddCmd.Flags().StringArrayVarP(&nodeProps, "prop", "p", nil, "Property as key=value; values that parse as JSON keep their type")
	relateCmd.Flags().Float64Var(&relStrength, "strength", -1, "Explicit strength in [0,1] (default derived from load)")

	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeGetCmd)
}

func newClient() *client.Client {
	return client.New(serverURL)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- query command ---

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Find nodes by id or type",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	var resp struct {
		Query   string               `json:"query"`
		Results []engine.QueryResult `json:"results"`
	}
	if err := newClient().Query(ctx, strings.Join(args, " "), &resp); err != nil {
		return fmt.Errorf("query: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, resp)
	}
	if len(resp.Results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	for i, r := range resp.Results {
		fmt.Fprintf(out, "%d. [%.3f] %s (%s) weight=%.2f\n", i+1, r.Relevance, r.Node.ID, r.Node.Type, r.Node.Weight)
	}
	return nil
}

// --- stats command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if statsOffline {
		return runOfflineStats(out)
	}

	ctx, cancel := requestContext()
	defer cancel()

	var st engine.Stats
	if err := newClient().Get(ctx, "/api/stats", &st); err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if outputJSON {
		return printJSON(out, st)
	}

	fmt.Fprintf(out, "nodes:          %d\n", st.Nodes)
	fmt.Fprintf(out, "edges:          %d (%d inferred)\n", st.Edges, st.InferredEdges)
	fmt.Fprintf(out, "clusters:       %d\n", st.Clusters)
	fmt.Fprintf(out, "inferences:     %d\n", st.Inferences)
	fmt.Fprintf(out, "pending writes: %d\n", st.PendingWrites)
	fmt.Fprintf(out, "embedder:       %s\n", st.Embedder)
	fmt.Fprintf(out, "cycles:         %d\n", st.Cycles)
	if st.LastCycle != nil {
		fmt.Fprintf(out, "last cycle:     %s\n", st.LastCycle.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "memory pressure: %.2f  load: %.2f\n", st.Telemetry.MemoryPressure(), st.Telemetry.LoadAvg1m)
	return nil
}

func runOfflineStats(out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	db, dbPath, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := db.CountRows()
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	version, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("schema version: %w", err)
	}
	if outputJSON {
		return printJSON(out, map[string]any{"db": dbPath, "schema_version": version, "tables": counts})
	}

	fmt.Fprintf(out, "## %s (schema v%d)\n\n", dbPath, version)
	for _, table := range []string{"graph_nodes", "graph_edges", "knowledge_clusters", "inference_operations", "api_usage_metrics"} {
		fmt.Fprintf(out, "  %-22s %d\n", table, counts[table])
	}
	return nil
}

// --- cycle command ---

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run inference, maintenance and clustering now",
	RunE:  runCycle,
}

func runCycle(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext()
	defer cancel()

	var report engine.CycleReport
	if err := newClient().Post(ctx, "/api/maintenance/run", nil, &report); err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, report)
	}
	fmt.Fprintf(out, "cycle finished in %s: %d inferred, %d pruned, %d reinforced, %d clusters\n",
		report.Duration, report.Inferred, report.Pruned, report.Reinforced, report.Clusters)
	if report.Shared {
		fmt.Fprintln(out, "(joined a cycle already in progress)")
	}
	for pass, msg := range report.Errors {
		fmt.Fprintf(out, "  %s failed: %s\n", pass, msg)
	}
	return nil
}

// --- node commands ---

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Create and inspect nodes",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add [id] [type]",
	Short: "Create or replace a node",
	Args:  cobra.ExactArgs(2),
	RunE:  runNodeAdd,
}

func runNodeAdd(cmd *cobra.Command, args []string) error {
	props, err := parseProps(nodeProps)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext()
	defer cancel()

	req := map[string]any{"id": args[0], "type": args[1], "properties": props}
	var node graph.Node
	if err := newClient().Post(ctx, "/api/nodes", req, &node); err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, node)
	}
	fmt.Fprintf(out, "node %s (%s) weight=%.2f\n", node.ID, node.Type, node.Weight)
	return nil
}

var nodeGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()
		var node graph.Node
		if err := newClient().Get(ctx, "/api/nodes/"+url.PathEscape(args[0]), &node); err != nil {
			return fmt.Errorf("get node: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), node)
	},
}

// parseProps turns key=value pairs into a property map. A value that is valid
// JSON keeps its JSON type; anything else is a string.
func parseProps(pairs []string) (map[string]any, error) {
	props := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q, want key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			props[k] = decoded
		} else {
			props[k] = v
		}
	}
	return props, nil
}

// --- relate command ---

var relateCmd = &cobra.Command{
	Use:   "relate [from] [to] [type]",
	Short: "Create a directed edge between two nodes",
	Args:  cobra.ExactArgs(3),
	RunE:  runRelate,
}

func runRelate(cmd *cobra.Command, args []string) error {
	req := map[string]any{"from": args[0], "to": args[1], "edge_type": args[2]}
	if relStrength >= 0 {
		req["strength"] = relStrength
	}

	ctx, cancel := requestContext()
	defer cancel()

	var edge graph.Edge
	if err := newClient().Post(ctx, "/api/relationships", req, &edge); err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return printJSON(out, edge)
	}
	fmt.Fprintf(out, "edge %s: %s -[%s]-> %s strength=%.3f\n", edge.ID, edge.From, edge.Type, edge.To, edge.Strength)
	return nil
}

// --- traverse command ---

var traverseCmd = &cobra.Command{
	Use:   "traverse [edge-id]",
	Short: "Record a traversal of an edge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext()
		defer cancel()

		var edge graph.Edge
		if err := newClient().Post(ctx, "/api/edges/"+url.PathEscape(args[0])+"/traverse", nil, &edge); err != nil {
			return fmt.Errorf("traverse: %w", err)
		}
		out := cmd.OutOrStdout()
		if outputJSON {
			return printJSON(out, edge)
		}
		fmt.Fprintf(out, "edge %s traversed %d times\n", edge.ID, edge.TraversalCount)
		return nil
	},
}
