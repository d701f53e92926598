package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/probe"
	"github.com/solatis/dispatchkeeper/internal/types"
)

var reportCmd = &cobra.Command{
	Use:   "report <alerts.jsonl>",
	Short: "Send historical alerts to a probe API for replay",
	Long: `Reads one JSON alert per line ({"alert_id", "dimensions", "created_at"})
and reports them in batches. Rejected alerts are logged and do not stop the
upload.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().String("addr", "localhost:50061", "probe API address")
	reportCmd.Flags().String("api-key", "", "API key, defaults to DK_API_KEY")
	reportCmd.Flags().Int("batch-size", 500, "alerts per request")
}

func runReport(cmd *cobra.Command, args []string) error {
	apiKey, _ := cmd.Flags().GetString("api-key")
	if apiKey == "" {
		apiKey = os.Getenv("DK_API_KEY")
	}
	if apiKey == "" {
		return fmt.Errorf("--api-key or DK_API_KEY required")
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("--batch-size must be positive")
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	addr, _ := cmd.Flags().GetString("addr")
	client, err := probe.Dial(addr, apiKey)
	if err != nil {
		return err
	}
	defer client.Close()

	var (
		batch    []types.Alert
		accepted int
		rejected int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		results, err := client.ReportAlerts(cmd.Context(), batch)
		if err != nil {
			return fmt.Errorf("report failed: %w", err)
		}
		for _, r := range results {
			if r.Status == probe.StatusAccepted {
				accepted++
				continue
			}
			rejected++
			logger.Warn("alert not accepted",
				zap.String("alert_id", r.AlertID),
				zap.String("status", r.Status),
				zap.String("error", r.Error),
			)
		}
		batch = batch[:0]
		return nil
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var alert types.Alert
		if err := json.Unmarshal(scanner.Bytes(), &alert); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		batch = append(batch, alert)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if err := flush(); err != nil {
		return err
	}

	logger.Info("alerts reported", zap.Int("accepted", accepted), zap.Int("rejected", rejected))
	return nil
}
