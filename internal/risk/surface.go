// Package risk holds the historical injury-density surface sampled by the
// historical risk layer. The surface is a weighted point cloud behind a
// quadtree; it can come from a GeoJSON file or a MongoDB collection.
package risk

import (
	"context"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"roadscout/internal/model"
)

var log = logrus.WithField("module", "risk")

type cell struct {
	pt     orb.Point
	weight float64
}

func (c cell) Point() orb.Point { return c.pt }

// Surface is immutable after construction and safe for concurrent sampling.
type Surface struct {
	qt   *quadtree.Quadtree
	size int
}

// Empty returns a surface that samples to zero everywhere.
func Empty() *Surface { return &Surface{} }

type WeightedPoint struct {
	Point  orb.Point
	Weight float64
}

// FromPoints builds a surface from in-memory cells.
func FromPoints(pts []WeightedPoint) *Surface {
	cells := make([]cell, 0, len(pts))
	for _, p := range pts {
		cells = append(cells, cell{pt: p.Point, weight: p.Weight})
	}
	return newSurface(cells)
}

func newSurface(cells []cell) *Surface {
	if len(cells) == 0 {
		return Empty()
	}
	bound := orb.Bound{Min: cells[0].pt, Max: cells[0].pt}
	for _, c := range cells[1:] {
		bound = bound.Extend(c.pt)
	}
	qt := quadtree.New(bound.Pad(0.001))
	for _, c := range cells {
		if err := qt.Add(c); err != nil {
			log.Warnf("skipping cell outside bound: %v", err)
		}
	}
	return &Surface{qt: qt, size: len(cells)}
}

func (s *Surface) Size() int { return s.size }

// Sample sums nearby cell weights with a linear falloff to radiusM.
// An empty surface or an isolated point samples to zero.
func (s *Surface) Sample(pt orb.Point, radiusM float64) float64 {
	if s.qt == nil || radiusM <= 0 {
		return 0
	}
	var sum float64
	for _, ptr := range s.qt.InBound(nil, geo.NewBoundAroundPoint(pt, radiusM)) {
		c := ptr.(cell)
		d := geo.DistanceHaversine(pt, c.pt)
		if d <= radiusM {
			sum += c.weight * (1 - d/radiusM)
		}
	}
	return sum
}

// cellWeight keeps the established scoring shape for ranked injury-network
// features: a base of 10 plus up to 20 rank-scaled points. An explicit
// weight property wins; unranked features count as 1.
func cellWeight(props geojson.Properties) float64 {
	if w := props.MustFloat64("weight", 0); w > 0 {
		return w
	}
	rank := props.MustFloat64("rank", 0)
	if rank == 0 {
		rank = props.MustFloat64("hinRank", 0)
	}
	if rank > 0 {
		bonus := rank / 1000 * 20
		if bonus > 20 {
			bonus = 20
		}
		return 10 + bonus
	}
	return 1
}

// LoadGeoJSON reads a feature collection; non-point geometries collapse to
// their centroid.
func LoadGeoJSON(path string) (*Surface, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "read risk surface %s: %v", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "decode risk surface %s: %v", path, err)
	}
	cells := make([]cell, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		centroid, _ := planar.CentroidArea(f.Geometry)
		cells = append(cells, cell{pt: centroid, weight: cellWeight(f.Properties)})
	}
	log.Infof("risk surface: %d cells from %s", len(cells), path)
	return newSurface(cells), nil
}

type mongoCell struct {
	Lat    float64 `bson:"lat"`
	Lng    float64 `bson:"lng"`
	Rank   float64 `bson:"rank,omitempty"`
	Weight float64 `bson:"weight,omitempty"`
}

// LoadMongo reads every document of a collection holding {lat, lng, rank|weight}.
func LoadMongo(ctx context.Context, uri, db, coll string) (*Surface, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "connect mongo: %v", err)
	}
	defer client.Disconnect(ctx)

	cur, err := client.Database(db).Collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "query %s.%s: %v", db, coll, err)
	}
	var docs []mongoCell
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrapf(model.ErrDataUnavailable, "decode %s.%s: %v", db, coll, err)
	}

	cells := make([]cell, 0, len(docs))
	for _, d := range docs {
		props := geojson.Properties{"rank": d.Rank, "weight": d.Weight}
		cells = append(cells, cell{pt: orb.Point{d.Lng, d.Lat}, weight: cellWeight(props)})
	}
	log.Infof("risk surface: %d cells from %s.%s", len(cells), db, coll)
	return newSurface(cells), nil
}

// Load resolves source as a file path when it exists on disk, otherwise as
// a "{db}.{collection}" reference against mongoURI. An empty source yields
// an empty surface.
func Load(ctx context.Context, source, mongoURI string) (*Surface, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return Empty(), nil
	}
	if _, err := os.Stat(source); err == nil {
		return LoadGeoJSON(source)
	}
	parts := strings.Split(source, ".")
	if len(parts) != 2 {
		return nil, errors.Wrapf(model.ErrConfiguration, "risk source %q is neither a file nor db.collection", source)
	}
	if mongoURI == "" {
		return nil, errors.Wrap(model.ErrConfiguration, "risk source references mongo but no uri is configured")
	}
	return LoadMongo(ctx, mongoURI, parts[0], parts[1])
}
