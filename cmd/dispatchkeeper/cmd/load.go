package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/solatis/dispatchkeeper/internal/core/config"
	"github.com/solatis/dispatchkeeper/internal/core/events"
	"github.com/solatis/dispatchkeeper/internal/rulefile"
)

var loadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Create or update rule groups from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.Flags().Bool("dry-run", false, "validate the file without saving")
	loadCmd.Flags().String("user", "", "user recorded as the editor, defaults to $USER")
}

func runLoad(cmd *cobra.Command, args []string) error {
	f, err := rulefile.Load(args[0])
	if err != nil {
		return err
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d group(s) valid\n", args[0], len(f.Groups))
		return nil
	}
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = currentUser()
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	publisher, err := events.New(cfg.Events, logger)
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	defer publisher.Close()

	env, err := openStore(publisher, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	applied, err := rulefile.Apply(cmd.Context(), env.store, f, user)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tRULES\tACTION")
	for _, a := range applied {
		action := "updated"
		if a.Created {
			action = "created"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", a.GroupID, a.Name, a.Priority, a.Rules, action)
	}
	return w.Flush()
}
