package model

import "github.com/paulmach/orb"

// Orb converts to the lon-first point type the geo stack uses.
func (p GeoPoint) Orb() orb.Point { return orb.Point{p.Lng, p.Lat} }

func FromOrb(pt orb.Point) GeoPoint { return GeoPoint{Lat: pt.Lat(), Lng: pt.Lon()} }

func (b BoundingBox) Orb() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.MinLng, b.MinLat},
		Max: orb.Point{b.MaxLng, b.MaxLat},
	}
}

func BoxFromOrb(b orb.Bound) BoundingBox {
	return BoundingBox{
		MinLat: b.Min.Lat(), MinLng: b.Min.Lon(),
		MaxLat: b.Max.Lat(), MaxLng: b.Max.Lon(),
	}
}
