package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/dispatchkeeper/internal/core/auth"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// ReportAlerts appends a batch of alerts to the replay history.
// Per-alert inserts enable partial batch success.
// The daily JSONL journal is a best-effort debugging aid, not authoritative.
func (s *Service) ReportAlerts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var env reportEnvelope
	if err := decode(in, &env); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %v", errMalformed, err))
	}

	if len(env.Alerts) == 0 || len(env.Alerts) > s.cfg.MaxBatchSize {
		return nil, status.Error(codes.InvalidArgument,
			fmt.Sprintf("batch size must be between 1 and %d alerts", s.cfg.MaxBatchSize))
	}

	// All alerts of a batch share one journal file even across midnight
	journal := filepath.Join(s.cfg.DataDir, "alerts", s.now().UTC().Format("2006-01-02.jsonl"))
	journalMutex := s.getJSONLMutex(journal)

	resp := reportResponse{Results: make([]ReportResult, len(env.Alerts))}
	for i, alert := range env.Alerts {
		resp.Results[i] = s.reportAlert(ctx, alert, journal, journalMutex)
		if resp.Results[i].Status == StatusAccepted {
			resp.Accepted++
		}
	}
	s.metrics.AlertsReported(resp.Accepted)

	s.logger.Debug("alerts reported",
		zap.String("caller", auth.CallerFromContext(ctx)),
		zap.Int("batch", len(env.Alerts)),
		zap.Int("accepted", resp.Accepted),
	)

	out, err := encode(resp)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// reportAlert validates, persists and journals a single alert.
func (s *Service) reportAlert(ctx context.Context, alert types.Alert, journal string, journalMutex *sync.Mutex) ReportResult {
	if len(alert.Dimensions) == 0 {
		return ReportResult{AlertID: alert.AlertID, Status: StatusRejected, Error: "dimensions required"}
	}

	stored, err := s.store.InsertAlert(ctx, alert)
	if err != nil {
		return ReportResult{AlertID: alert.AlertID, Status: StatusError, Error: err.Error()}
	}

	journalMutex.Lock()
	defer journalMutex.Unlock()
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		defer f.Close()
		_ = json.NewEncoder(f).Encode(stored)
	}

	return ReportResult{AlertID: stored.AlertID, Status: StatusAccepted}
}
