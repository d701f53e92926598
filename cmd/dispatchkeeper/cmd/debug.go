package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/dispatchkeeper/internal/core/probe"
	"github.com/solatis/dispatchkeeper/internal/csvio"
	"github.com/solatis/dispatchkeeper/internal/dispatch"
	"github.com/solatis/dispatchkeeper/internal/types"
)

var debugCmd = &cobra.Command{
	Use:   "debug <group-id>",
	Short: "Preview how stored alerts would be dispatched by a group",
	Long: `Sends the group's rules to a probe API and prints how many alerts of the
time window each rule would claim. With --csv the stored rules are replaced by
the rules of a CSV file first, so an edit can be checked before it is imported.
With --delete the probe previews dispatch as if the group did not exist.`,
	Args: cobra.ExactArgs(1),
	RunE: runDebug,
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.Flags().String("addr", "localhost:50061", "probe API address")
	debugCmd.Flags().String("api-key", "", "API key, defaults to DK_API_KEY")
	debugCmd.Flags().Duration("since", 24*time.Hour, "window length ending now, ignored when --start is set")
	debugCmd.Flags().String("start", "", "window start (RFC3339)")
	debugCmd.Flags().String("end", "", "window end (RFC3339), defaults to now")
	debugCmd.Flags().String("csv", "", "probe the rules of this CSV file instead of the stored ones")
	debugCmd.Flags().Bool("delete", false, "preview dispatch without the group")
	debugCmd.Flags().Duration("timeout", 30*time.Second, "request timeout")
}

func runDebug(cmd *cobra.Command, args []string) error {
	groupID, err := parseGroupID(args[0])
	if err != nil {
		return err
	}
	window, err := debugWindow(cmd, time.Now())
	if err != nil {
		return err
	}
	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" {
		apiKey = os.Getenv("DK_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("--api-key or DK_API_KEY required")
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	env, err := openStore(nil, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	g, err := loadGroup(ctx, env.store, groupID)
	if err != nil {
		return fmt.Errorf("failed to load group %d: %w", groupID, err)
	}

	var req types.DebugRequest
	if deletion, _ := cmd.Flags().GetBool("delete"); deletion {
		req = dispatch.DeletionDebugRequest(groupID)
	} else {
		if path, _ := cmd.Flags().GetString("csv"); path != "" {
			if err := replaceFromCSV(g, path); err != nil {
				return err
			}
		}
		if !g.CanDebug() {
			return invalidRulesError(g)
		}
		req = g.DebugRequest()
	}

	addr, _ := cmd.Flags().GetString("addr")
	client, err := probe.Dial(addr, apiKey)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Debug(ctx, req, window)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	g.ApplyHits(resp.Group(groupID))

	return printDebug(cmd.OutOrStdout(), g, resp, req.IsDeletion())
}

func parseGroupID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid group id %q", s)
	}
	return id, nil
}

func debugWindow(cmd *cobra.Command, now time.Time) (types.TimeWindow, error) {
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")
	since, _ := cmd.Flags().GetDuration("since")

	end := now.UTC().Truncate(time.Second)
	if endFlag != "" {
		t, err := time.Parse(time.RFC3339, endFlag)
		if err != nil {
			return types.TimeWindow{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}
	start := end.Add(-since)
	if startFlag != "" {
		t, err := time.Parse(time.RFC3339, startFlag)
		if err != nil {
			return types.TimeWindow{}, fmt.Errorf("invalid --start: %w", err)
		}
		start = t
	}
	if !end.After(start) {
		return types.TimeWindow{}, fmt.Errorf("%w: %s .. %s", types.ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return types.TimeWindow{Start: start, End: end}, nil
}

func replaceFromCSV(g *dispatch.Group, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	params, err := csvio.Import(f)
	if err != nil {
		return err
	}
	g.LoadRules(nil)
	g.Tracker().Append(params)
	return nil
}

func invalidRulesError(g *dispatch.Group) error {
	var problems []string
	for i, r := range g.Rules {
		for _, fe := range r.Errors {
			problems = append(problems, fmt.Sprintf("rule %d: %s", i, fe.Error()))
		}
	}
	return fmt.Errorf("group %d has invalid rules: %s", g.ID, strings.Join(problems, "; "))
}

func printDebug(out io.Writer, g *dispatch.Group, resp types.DebugResponse, deletion bool) error {
	fmt.Fprintf(out, "alerts: %d  unmatched: %d\n\n", resp.TotalAlerts, resp.Unmatched)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tNAME\tPRIORITY\tALERTS")
	for _, gh := range resp.Groups {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", gh.GroupID, gh.GroupName, gh.Priority, gh.AlertsCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if deletion {
		return nil
	}

	fmt.Fprintf(out, "\nrules of group %d (%s):\n", g.ID, g.Name)
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tRULE\tHITS\tCONDITIONS")
	for i, r := range g.Rules {
		if r.HitCount == nil {
			continue
		}
		id := "new"
		if r.IsPersisted() {
			id = strconv.FormatInt(r.ID, 10)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i, id, *r.HitCount, describeConditions(r.RealConditions()))
	}
	return w.Flush()
}

func describeConditions(conds []types.Condition) string {
	var b strings.Builder
	for i, c := range conds {
		if i > 0 {
			fmt.Fprintf(&b, " %s ", c.EffectiveConnector())
		}
		fmt.Fprintf(&b, "%s %s [%s]", c.Field, c.Operator, strings.Join(c.Values, ", "))
	}
	return b.String()
}
