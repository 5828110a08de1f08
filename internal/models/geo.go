package models

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	errBadCoordinate = errors.New("Location coordinates must be decimal degrees")
	errOutOfRange    = errors.New("Location coordinates are out of range")
)

// Point parses the submitted coordinates.
func (r *CreateIssueRequest) Point() (GeoPoint, error) {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(r.Lat), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(r.Lng), 64)
	if err1 != nil || err2 != nil || math.IsNaN(lat) || math.IsNaN(lng) {
		return GeoPoint{}, errBadCoordinate
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return GeoPoint{}, errOutOfRange
	}
	return GeoPoint{Lat: lat, Lng: lng}, nil
}

// GeoBox is an axis-aligned box in degree space.
type GeoBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoxAround returns the box extending offset degrees from p in each axis.
// This is a planar approximation and widens in ground distance toward the poles.
func BoxAround(p GeoPoint, offset float64) GeoBox {
	return GeoBox{
		MinLat: p.Lat - offset,
		MaxLat: p.Lat + offset,
		MinLng: p.Lng - offset,
		MaxLng: p.Lng + offset,
	}
}

func (b GeoBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat &&
		p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// CellKeys lists the grid cells of the given size that the box touches.
// Any two boxes that could count a common issue share at least one key.
func (b GeoBox) CellKeys(cellSize float64) []string {
	minLat := int64(math.Floor(b.MinLat / cellSize))
	maxLat := int64(math.Floor(b.MaxLat / cellSize))
	minLng := int64(math.Floor(b.MinLng / cellSize))
	maxLng := int64(math.Floor(b.MaxLng / cellSize))

	var keys []string
	for la := minLat; la <= maxLat; la++ {
		for ln := minLng; ln <= maxLng; ln++ {
			keys = append(keys, strconv.FormatInt(la, 10)+":"+strconv.FormatInt(ln, 10))
		}
	}
	return keys
}
