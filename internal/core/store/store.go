// Package store persists rule groups, their rules and the alert history
// replayed by the match-debug probe.
//
// Store is the sqlx/dotsql implementation of the dispatch collaborators
// (dispatch.GroupSource, dispatch.RuleSource) and of the probe's data
// source. Rule lists are replaced as a batch in a single transaction; every
// committed mutation is announced through an events.Publisher.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/core/events"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// Store is safe for concurrent use; all state lives in the database.
type Store struct {
	q         *db.Queries
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// New creates a store. A nil publisher or logger disables that concern.
func New(q *db.Queries, publisher events.Publisher, logger *zap.Logger) *Store {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{q: q, publisher: publisher, logger: logger, now: time.Now}
}

type groupRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Priority    int    `db:"priority"`
	EditAllowed bool   `db:"edit_allowed"`
	Settings    string `db:"settings"`
	UpdateUser  string `db:"update_user"`
	UpdateTime  string `db:"update_time"`
}

func (r groupRow) info() (types.GroupInfo, error) {
	info := types.GroupInfo{
		ID:          r.ID,
		Name:        r.Name,
		Priority:    r.Priority,
		EditAllowed: r.EditAllowed,
		UpdateUser:  r.UpdateUser,
	}
	if err := decodeJSON(r.Settings, &info.Settings); err != nil {
		return types.GroupInfo{}, fmt.Errorf("group %d settings: %w", r.ID, err)
	}
	t, err := db.ParseTime(r.UpdateTime)
	if err != nil {
		return types.GroupInfo{}, fmt.Errorf("group %d: %w", r.ID, err)
	}
	info.UpdateTime = t
	return info, nil
}

// ListGroups returns every group, highest priority first.
func (s *Store) ListGroups(ctx context.Context) ([]types.GroupInfo, error) {
	var rows []groupRow
	if err := s.q.SelectContext(ctx, "list-groups", &rows); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	out := make([]types.GroupInfo, 0, len(rows))
	for _, r := range rows {
		info, err := r.info()
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// GetGroup returns one group or types.ErrGroupNotFound.
func (s *Store) GetGroup(ctx context.Context, id int64) (types.GroupInfo, error) {
	var row groupRow
	err := s.q.GetContext(ctx, "get-group", &row, id)
	if errors.Is(err, sql.ErrNoRows) {
		return types.GroupInfo{}, fmt.Errorf("%w: %d", types.ErrGroupNotFound, id)
	}
	if err != nil {
		return types.GroupInfo{}, fmt.Errorf("database error: %w", err)
	}
	return row.info()
}

// CreateGroup stores a new group and returns it with its assigned id.
// The priority must not be held by another group.
func (s *Store) CreateGroup(ctx context.Context, info types.GroupInfo) (types.GroupInfo, error) {
	if err := info.Validate(); err != nil {
		return types.GroupInfo{}, err
	}
	settings, err := encodeJSON(info.Settings)
	if err != nil {
		return types.GroupInfo{}, err
	}
	info.UpdateTime = s.now().UTC().Truncate(time.Second)

	err = s.q.InTx(ctx, func(tx *db.Tx) error {
		if err := checkPriority(ctx, tx, info.Priority, 0); err != nil {
			return err
		}
		return tx.GetContext(ctx, "insert-group", &info.ID,
			info.Name, info.Priority, info.EditAllowed, settings, info.UpdateUser, db.FormatTime(info.UpdateTime))
	})
	if err != nil {
		return types.GroupInfo{}, wrapDB(err)
	}

	s.publish(ctx, events.NewGroupChanged(info.ID, events.ActionCreated, 0, info.UpdateUser))
	return info, nil
}

// UpdateGroup rewrites name, priority, edit flag and settings of a group.
func (s *Store) UpdateGroup(ctx context.Context, info types.GroupInfo) (types.GroupInfo, error) {
	if err := info.Validate(); err != nil {
		return types.GroupInfo{}, err
	}
	settings, err := encodeJSON(info.Settings)
	if err != nil {
		return types.GroupInfo{}, err
	}
	info.UpdateTime = s.now().UTC().Truncate(time.Second)

	err = s.q.InTx(ctx, func(tx *db.Tx) error {
		if err := checkPriority(ctx, tx, info.Priority, info.ID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "update-group",
			info.Name, info.Priority, info.EditAllowed, settings, info.UpdateUser, db.FormatTime(info.UpdateTime), info.ID)
		if err != nil {
			return err
		}
		return expectRow(res, info.ID)
	})
	if err != nil {
		return types.GroupInfo{}, wrapDB(err)
	}

	s.publish(ctx, events.NewGroupChanged(info.ID, events.ActionUpdated, 0, info.UpdateUser))
	return info, nil
}

// DeleteGroup removes a group and all of its rules.
func (s *Store) DeleteGroup(ctx context.Context, id int64, user string) error {
	err := s.q.InTx(ctx, func(tx *db.Tx) error {
		if _, err := tx.ExecContext(ctx, "delete-group-rules", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "delete-group", id)
		if err != nil {
			return err
		}
		return expectRow(res, id)
	})
	if err != nil {
		return wrapDB(err)
	}

	s.publish(ctx, events.NewGroupChanged(id, events.ActionDeleted, 0, user))
	return nil
}

// checkPriority fails with types.ErrPriorityConflict when a group other
// than selfID holds priority.
func checkPriority(ctx context.Context, tx *db.Tx, priority int, selfID int64) error {
	var ids []int64
	if err := tx.SelectContext(ctx, "get-group-id-by-priority", &ids, priority); err != nil {
		return err
	}
	for _, id := range ids {
		if id != selfID {
			return fmt.Errorf("%w: %d held by group %d", types.ErrPriorityConflict, priority, id)
		}
	}
	return nil
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", types.ErrGroupNotFound, id)
	}
	return nil
}

// wrapDB leaves domain errors untouched and tags everything else as a
// database error, which the probe maps to codes.Unavailable.
func wrapDB(err error) error {
	for _, domain := range []error{
		types.ErrGroupNotFound,
		types.ErrPriorityConflict,
		types.ErrRuleNotFound,
		types.ErrTooManyRules,
	} {
		if errors.Is(err, domain) {
			return err
		}
	}
	return fmt.Errorf("database error: %w", err)
}

func (s *Store) publish(ctx context.Context, ev *events.GroupChanged) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish group change",
			zap.Int64("group_id", ev.GroupID),
			zap.String("action", string(ev.Action)),
			zap.Error(err),
		)
	}
}

func encodeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	return string(b), nil
}

func decodeJSON(s string, dest interface{}) error {
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}
