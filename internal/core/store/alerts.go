package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/dispatchkeeper/internal/core/db"
	"github.com/solatis/dispatchkeeper/internal/types"
)

type alertRow struct {
	AlertID    string `db:"alert_id"`
	Dimensions string `db:"dimensions"`
	CreatedAt  string `db:"created_at"`
}

// InsertAlert records an alert in the history. A missing id or timestamp is
// filled in; the stored alert is returned.
func (s *Store) InsertAlert(ctx context.Context, alert types.Alert) (types.Alert, error) {
	if alert.AlertID == "" {
		alert.AlertID = types.NewAlertID()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = s.now()
	}
	alert.CreatedAt = alert.CreatedAt.UTC().Truncate(time.Second)

	dims, err := encodeJSON(alert.Dimensions)
	if err != nil {
		return types.Alert{}, err
	}
	if _, err := s.q.ExecContext(ctx, "insert-alert", alert.AlertID, dims, db.FormatTime(alert.CreatedAt)); err != nil {
		return types.Alert{}, fmt.Errorf("database error: %w", err)
	}
	return alert, nil
}

// ListAlerts returns at most limit alerts created inside window, oldest first.
func (s *Store) ListAlerts(ctx context.Context, window types.TimeWindow, limit int) ([]types.Alert, error) {
	if !window.End.After(window.Start) {
		return nil, types.ErrInvalidWindow
	}

	var rows []alertRow
	err := s.q.SelectContext(ctx, "list-alerts-in-window", &rows,
		db.FormatTime(window.Start), db.FormatTime(window.End), limit)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	out := make([]types.Alert, 0, len(rows))
	for _, r := range rows {
		a := types.Alert{AlertID: r.AlertID}
		if err := decodeJSON(r.Dimensions, &a.Dimensions); err != nil {
			return nil, fmt.Errorf("alert %s: %w", r.AlertID, err)
		}
		if a.CreatedAt, err = db.ParseTime(r.CreatedAt); err != nil {
			return nil, fmt.Errorf("alert %s: %w", r.AlertID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// notFound maps a missing group row to types.ErrGroupNotFound.
func notFound(err error, groupID int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", types.ErrGroupNotFound, groupID)
	}
	return err
}
