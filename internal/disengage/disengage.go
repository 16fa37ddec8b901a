// Package disengage supplies autonomy disengagement events to the scoring
// pipeline. Sources are interchangeable: a deterministic synthetic generator
// for development and a read-only Postgres-backed store for fleets that
// record real events.
package disengage

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"roadscout/internal/model"
)

var log = logrus.WithField("module", "disengage")

type Source interface {
	Events(ctx context.Context, area model.BoundingBox, window model.TimeWindow) ([]model.DisengagementEvent, error)
}

// FromEnv picks a source by configuration: the Postgres store when a DSN
// is set, else a CSV export when a path is set, else the synthetic
// generator with the given seed.
func FromEnv(dsn, csvPath string, seed int64) (Source, error) {
	switch {
	case dsn != "":
		log.Info("using postgres disengagement source")
		return NewStore(dsn)
	case csvPath != "":
		log.Infof("using csv disengagement source %s", csvPath)
		return NewCSVFile(csvPath), nil
	default:
		log.Info("using synthetic disengagement source")
		return NewSynthetic(seed), nil
	}
}

// windowEnd resolves the reference time events are generated up to.
func windowEnd(w model.TimeWindow) time.Time {
	if !w.End.IsZero() {
		return w.End
	}
	return time.Now().UTC()
}
