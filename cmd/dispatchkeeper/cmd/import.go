package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/config"
	"github.com/solatis/dispatchkeeper/internal/core/events"
	"github.com/solatis/dispatchkeeper/internal/csvio"
)

var importCmd = &cobra.Command{
	Use:   "import <group-id> <file>",
	Short: "Add the rules of a CSV file to a group",
	Long: `Parses every row of the file first. If any row is malformed nothing is
saved and all problems are listed. With --replace the file becomes the group's
complete rule list; otherwise its rules are appended to the stored ones.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().Bool("replace", false, "replace the stored rules instead of appending")
	importCmd.Flags().String("user", "", "user recorded as the editor, defaults to $USER")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	groupID, err := parseGroupID(args[0])
	if err != nil {
		return err
	}
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = currentUser()
	}

	f, err := os.Open(args[1])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[1], err)
	}
	defer f.Close()
	params, err := csvio.Import(f)
	if err != nil {
		return err
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

	g, err := loadGroup(ctx, env.store, groupID)
	if err != nil {
		return fmt.Errorf("failed to load group %d: %w", groupID, err)
	}
	if replace, _ := cmd.Flags().GetBool("replace"); replace {
		g.LoadRules(nil)
	}
	g.Tracker().Append(params)
	if !g.AllValid() {
		return invalidRulesError(g)
	}

	saved, err := env.store.SaveRules(ctx, groupID, g.SubmitRules(), user)
	if err != nil {
		return fmt.Errorf("failed to save rules: %w", err)
	}
	info, err := env.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	g.Saved(info, saved)

	logger.Info("rules imported",
		zap.Int64("group_id", groupID),
		zap.Int("imported", len(params)),
		zap.Int("total", len(saved)),
		zap.String("user", user),
	)
	return nil
}
