package store

import (
	"context"
	"fmt"
	"time"

	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/core/events"
	"github.com/solatis/dispatchkeeper/internal/rules"
	"github.com/solatis/dispatchkeeper/internal/types"
)

type ruleRow struct {
	ID             int64  `db:"id"`
	GroupID        int64  `db:"assign_group_id"`
	Position       int    `db:"position"`
	UserGroups     string `db:"user_groups"`
	Conditions     string `db:"conditions"`
	Actions        string `db:"actions"`
	AlertSeverity  int    `db:"alert_severity"`
	AdditionalTags string `db:"additional_tags"`
	IsEnabled      bool   `db:"is_enabled"`
}

func (r ruleRow) params() (types.RuleParams, error) {
	p := types.RuleParams{
		ID:            r.ID,
		AlertSeverity: r.AlertSeverity,
		IsEnabled:     r.IsEnabled,
	}
	for _, col := range []struct {
		raw  string
		dest interface{}
	}{
		{r.UserGroups, &p.UserGroups},
		{r.Conditions, &p.Conditions},
		{r.Actions, &p.Actions},
		{r.AdditionalTags, &p.AdditionalTags},
	} {
		if err := decodeJSON(col.raw, col.dest); err != nil {
			return types.RuleParams{}, fmt.Errorf("rule %d: %w", r.ID, err)
		}
	}
	return p, nil
}

// ruleColumns encodes the JSON columns of p in insert order.
func ruleColumns(p types.RuleParams) (userGroups, conditions, actions, tags string, err error) {
	if userGroups, err = encodeJSON(nonNil(p.UserGroups)); err != nil {
		return
	}
	if conditions, err = encodeJSON(nonNil(p.Conditions)); err != nil {
		return
	}
	if actions, err = encodeJSON(nonNil(p.Actions)); err != nil {
		return
	}
	tags, err = encodeJSON(nonNil(p.AdditionalTags))
	return
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ListRules returns a group's rules in list order.
func (s *Store) ListRules(ctx context.Context, groupID int64) ([]types.RuleParams, error) {
	var rows []ruleRow
	if err := s.q.SelectContext(ctx, "list-rules", &rows, groupID); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	out := make([]types.RuleParams, 0, len(rows))
	for _, r := range rows {
		p, err := r.params()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SaveRules replaces a group's rule list with batch. Rules carrying an id
// are updated in place and must belong to the group; rules without one are
// inserted; stored rules missing from batch are deleted. The returned slice
// is batch in order with every id filled in.
func (s *Store) SaveRules(ctx context.Context, groupID int64, batch []types.RuleParams, user string) ([]types.RuleParams, error) {
	if err := rules.ValidateRules(batch); err != nil {
		return nil, err
	}

	now := db.FormatTime(s.now().UTC().Truncate(time.Second))
	saved := make([]types.RuleParams, len(batch))
	copy(saved, batch)

	err := s.q.InTx(ctx, func(tx *db.Tx) error {
		var group groupRow
		if err := tx.GetContext(ctx, "get-group", &group, groupID); err != nil {
			return notFound(err, groupID)
		}

		var ids []int64
		if err := tx.SelectContext(ctx, "list-rule-ids", &ids, groupID); err != nil {
			return err
		}
		stale := make(map[int64]bool, len(ids))
		for _, id := range ids {
			stale[id] = true
		}

		for i := range saved {
			p := &saved[i]
			userGroups, conditions, actions, tags, err := ruleColumns(*p)
			if err != nil {
				return err
			}

			if p.ID != 0 {
				if !stale[p.ID] {
					return fmt.Errorf("%w: rule %d in group %d", types.ErrRuleNotFound, p.ID, groupID)
				}
				delete(stale, p.ID)
				if _, err := tx.ExecContext(ctx, "update-rule",
					i, userGroups, conditions, actions, p.AlertSeverity, tags, p.IsEnabled, now,
					p.ID, groupID); err != nil {
					return err
				}
				continue
			}

			if err := tx.GetContext(ctx, "insert-rule", &p.ID,
				groupID, i, userGroups, conditions, actions, p.AlertSeverity, tags, p.IsEnabled, now); err != nil {
				return err
			}
		}

		for id := range stale {
			if _, err := tx.ExecContext(ctx, "delete-rule", id, groupID); err != nil {
				return err
			}
		}

		_, err := tx.ExecContext(ctx, "touch-group", user, now, groupID)
		return err
	})
	if err != nil {
		return nil, wrapDB(err)
	}

	s.publish(ctx, events.NewGroupChanged(groupID, events.ActionRulesSaved, len(saved), user))
	return saved, nil
}
