package disengage

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"

	"roadscout/internal/model"
)

// Store reads disengagement events from an externally managed Postgres
// table. This service never writes to it.
type Store struct {
	db *sql.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open disengagement store")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "ping disengagement store: %v", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Events(ctx context.Context, area model.BoundingBox, window model.TimeWindow) ([]model.DisengagementEvent, error) {
	var from, to any
	if !window.Start.IsZero() {
		from = window.Start
	}
	if !window.End.IsZero() {
		to = window.End
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lat, lng, reason, severity, occurred_at
		FROM disengagements
		WHERE lat BETWEEN $1 AND $2
		  AND lng BETWEEN $3 AND $4
		  AND ($5::timestamptz IS NULL OR occurred_at >= $5)
		  AND ($6::timestamptz IS NULL OR occurred_at <= $6)
		ORDER BY occurred_at`,
		area.MinLat, area.MaxLat, area.MinLng, area.MaxLng, from, to)
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "query disengagements: %v", err)
	}
	defer rows.Close()

	var out []model.DisengagementEvent
	for rows.Next() {
		var (
			ev     model.DisengagementEvent
			reason sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Location.Lat, &ev.Location.Lng, &reason, &ev.Severity, &ev.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "scan disengagement row")
		}
		ev.Reason = reason.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "read disengagements: %v", err)
	}
	return out, nil
}

func (s *Store) Close() error { return s.db.Close() }
