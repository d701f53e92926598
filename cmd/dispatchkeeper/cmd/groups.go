package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/dispatch"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List rule groups, highest priority first",
	Args:  cobra.NoArgs,
	RunE:  runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)
	groupsCmd.Flags().String("search", "", "filter by group id, rule tag, tag key or tag value")
}

func runGroups(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
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

	groups, err := dispatch.LoadGroups(ctx, env.store)
	if err != nil {
		return err
	}

	if query, _ := cmd.Flags().GetString("search"); query != "" {
		for _, g := range groups {
			if err := dispatch.LoadGroupRules(ctx, g, env.store); err != nil {
				return err
			}
		}
		groups = dispatch.SearchGroups(groups, query, nil)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tEDITABLE\tUPDATED BY\tUPDATED AT")
	for _, g := range groups {
		updated := "-"
		if !g.UpdateTime.IsZero() {
			updated = db.FormatTime(g.UpdateTime)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%t\t%s\t%s\n", g.ID, g.Name, g.Priority, g.EditAllowed, g.UpdateUser, updated)
	}
	return w.Flush()
}
