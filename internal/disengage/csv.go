package disengage

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"roadscout/internal/model"
)

// CSVFile reads disengagement events from an operator-dropped CSV export.
// Expected columns, with header: id,lat,lng,reason,severity,occurred_at
// (occurred_at in RFC 3339). Rows that fail to parse are skipped with a
// warning so one bad line does not sink a whole export.
type CSVFile struct {
	Path string
}

func NewCSVFile(path string) *CSVFile { return &CSVFile{Path: path} }

func (c *CSVFile) Events(ctx context.Context, area model.BoundingBox, window model.TimeWindow) ([]model.DisengagementEvent, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "open disengagement csv: %v", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6
	r.TrimLeadingSpace = true
	if _, err := r.Read(); err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "read disengagement csv header: %v", err)
	}

	bound := area.Orb()
	var out []model.DisengagementEvent
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				log.Warnf("disengagement csv line %d skipped: %v", line, err)
				continue
			}
			return nil, errors.Wrapf(model.ErrDataUnavailable, "read disengagement csv line %d: %v", line, err)
		}
		ev, perr := parseCSVEvent(rec)
		if perr != nil {
			log.Warnf("disengagement csv line %d skipped: %v", line, perr)
			continue
		}
		if !bound.Contains(ev.Location.Orb()) {
			continue
		}
		if !window.Start.IsZero() && ev.OccurredAt.Before(window.Start) {
			continue
		}
		if !window.End.IsZero() && ev.OccurredAt.After(window.End) {
			continue
		}
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func parseCSVEvent(rec []string) (model.DisengagementEvent, error) {
	var ev model.DisengagementEvent
	ev.ID = rec[0]
	lat, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return ev, errors.Wrap(err, "lat")
	}
	lng, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return ev, errors.Wrap(err, "lng")
	}
	ev.Location = model.GeoPoint{Lat: lat, Lng: lng}
	ev.Reason = rec[3]
	if rec[4] != "" {
		sev, err := strconv.Atoi(rec[4])
		if err != nil {
			return ev, errors.Wrap(err, "severity")
		}
		ev.Severity = sev
	}
	at, err := time.Parse(time.RFC3339, rec[5])
	if err != nil {
		return ev, errors.Wrap(err, "occurred_at")
	}
	ev.OccurredAt = at.UTC()
	return ev, nil
}
