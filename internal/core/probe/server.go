package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/dispatchkeeper/internal/core/auth"
	"github.com/solatis/dispatchkeeper/internal/core/cache"
	"github.com/solatis/dispatchkeeper/internal/core/config"
	"github.com/solatis/dispatchkeeper/internal/core/metrics"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// Store is the data the service reads and appends to.
type Store interface {
	ListGroups(ctx context.Context) ([]types.GroupInfo, error)
	ListRules(ctx context.Context, groupID int64) ([]types.RuleParams, error)
	ListAlerts(ctx context.Context, window types.TimeWindow, limit int) ([]types.Alert, error)
	InsertAlert(ctx context.Context, alert types.Alert) (types.Alert, error)
}

// Service implements MatchDebugServer.
// Thin orchestration layer delegating to the store, rules and cache.
type Service struct {
	store   Store
	cfg     *config.ProbeAPIConfig
	cache   cache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

// NewService creates the service. cache and metrics may be nil.
// Auto-creates the alert journal directory if not exists.
func NewService(store Store, cfg *config.ProbeAPIConfig, c cache.Cache, m *metrics.Metrics, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "alerts"), 0755); err != nil {
		return nil, err
	}

	return &Service{
		store:        store,
		cfg:          cfg,
		cache:        c,
		metrics:      m,
		logger:       logger,
		now:          time.Now,
		jsonlMutexes: make(map[string]*sync.Mutex),
	}, nil
}

// Debug decodes a probe request, evaluates it and encodes the response.
func (s *Service) Debug(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var env debugEnvelope
	if err := decode(in, &env); err != nil {
		return nil, toStatus(fmt.Errorf("%w: %v", errMalformed, err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	window := types.TimeWindow{Start: env.Start, End: env.End}
	resp, err := s.Evaluate(ctx, env.Request, window)
	if err != nil {
		s.logger.Warn("probe failed",
			zap.String("caller", auth.CallerFromContext(ctx)),
			zap.Int64("group_id", env.Request.AssignGroupID),
			zap.Error(err),
		)
		return nil, toStatus(err)
	}

	s.logger.Info("probe evaluated",
		zap.String("caller", auth.CallerFromContext(ctx)),
		zap.Int64("group_id", env.Request.AssignGroupID),
		zap.Int("rules", len(env.Request.Rules)),
		zap.Int64s("exclude_groups", env.Request.ExcludeGroups),
		zap.Int("alerts", resp.TotalAlerts),
		zap.Int("unmatched", resp.Unmatched),
	)

	out, err := encode(resp)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// getJSONLMutex returns mutex for given filename, creating if not exists.
// Per-file mutex protects concurrent writes to same daily JSONL file.
func (s *Service) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}
