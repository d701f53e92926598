package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/dispatchkeeper/internal/csvio"
)

var exportCmd = &cobra.Command{
	Use:   "export <group-id>",
	Short: "Write a group's rules as CSV",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "output file, defaults to stdout")
}

func runExport(cmd *cobra.Command, args []string) error {
	groupID, err := parseGroupID(args[0])
	if err != nil {
		return err
	}
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

	g, err := loadGroup(cmd.Context(), env.store, groupID)
	if err != nil {
		return fmt.Errorf("failed to load group %d: %w", groupID, err)
	}

	var out io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}
	return csvio.Export(out, g.Rules)
}
