// Package geo holds the coarse geodesic helpers used when scoring a guessed
// location: range checks, bounding boxes and great-circle distance.
package geo

import "math"

const earthRadiusKm = 6371.0

// InRange reports whether lat/lng are valid WGS84 degrees.
func InRange(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Box is an axis-aligned lat/lng rectangle. Bounds are inclusive.
type Box struct {
	Name   string
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Contains reports whether the point lies inside the box.
func (b Box) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// OceanBoxes is the coarse open-water table. The Pacific wraps the
// antimeridian so it needs two boxes.
var OceanBoxes = []Box{
	{Name: "Pacific", MinLat: -60, MaxLat: 60, MinLng: 120, MaxLng: 180},
	{Name: "Pacific", MinLat: -60, MaxLat: 60, MinLng: -180, MaxLng: -80},
	{Name: "Atlantic", MinLat: -60, MaxLat: 70, MinLng: -80, MaxLng: 20},
	{Name: "Indian", MinLat: -60, MaxLat: 30, MinLng: 20, MaxLng: 120},
}

// LandBoxes are coarse land masks carved out of OceanBoxes. Only land that
// sits inside an ocean box needs a mask. Boxes hug the coastline closely
// enough that open water between them (the Arabian Sea, the Bay of Bengal,
// the Sargasso and Caribbean seas, the North Pacific) stays water.
var LandBoxes = []Box{
	{Name: "Europe", MinLat: 36, MaxLat: 71, MinLng: -10, MaxLng: 40},
	{Name: "Iceland", MinLat: 63, MaxLat: 67, MinLng: -25, MaxLng: -13},
	{Name: "West and North Africa", MinLat: 5, MaxLat: 37, MinLng: -18, MaxLng: 35},
	{Name: "Central and Southern Africa", MinLat: -35, MaxLat: 5, MinLng: 8, MaxLng: 42},
	{Name: "Horn of Africa", MinLat: -12, MaxLat: 12, MinLng: 38, MaxLng: 52},
	{Name: "Madagascar", MinLat: -26, MaxLat: -12, MinLng: 43, MaxLng: 51},
	{Name: "Arabia", MinLat: 12, MaxLat: 30, MinLng: 35, MaxLng: 60},
	{Name: "Iran and Pakistan coast", MinLat: 24, MaxLat: 30, MinLng: 56, MaxLng: 68},
	{Name: "Indian Peninsula", MinLat: 6, MaxLat: 23, MinLng: 68, MaxLng: 82},
	{Name: "Northern India", MinLat: 21, MaxLat: 30, MinLng: 68, MaxLng: 97},
	{Name: "Indochina", MinLat: 1, MaxLat: 30, MinLng: 92, MaxLng: 110},
	{Name: "East Asia", MinLat: 18, MaxLat: 60, MinLng: 100, MaxLng: 135},
	{Name: "Japan", MinLat: 30, MaxLat: 50, MinLng: 129, MaxLng: 146},
	{Name: "Russian Far East", MinLat: 50, MaxLat: 60, MinLng: 135, MaxLng: 165},
	{Name: "Philippines", MinLat: 5, MaxLat: 19, MinLng: 117, MaxLng: 127},
	{Name: "Maritime Southeast Asia", MinLat: -11, MaxLat: 5, MinLng: 95, MaxLng: 141},
	{Name: "New Guinea", MinLat: -11, MaxLat: 0, MinLng: 130, MaxLng: 152},
	{Name: "Australia", MinLat: -44, MaxLat: -10, MinLng: 112, MaxLng: 154},
	{Name: "New Zealand", MinLat: -48, MaxLat: -34, MinLng: 166, MaxLng: 179},
	{Name: "Hawaii", MinLat: 18, MaxLat: 23, MinLng: -161, MaxLng: -154},
	{Name: "Alaska", MinLat: 54, MaxLat: 72, MinLng: -170, MaxLng: -130},
	{Name: "United States and Canada", MinLat: 25, MaxLat: 60, MinLng: -125, MaxLng: -66},
	{Name: "Atlantic Canada", MinLat: 43, MaxLat: 60, MinLng: -66, MaxLng: -52},
	{Name: "Greenland", MinLat: 59, MaxLat: 72, MinLng: -60, MaxLng: -20},
	{Name: "Mexico", MinLat: 14, MaxLat: 33, MinLng: -118, MaxLng: -86},
	{Name: "Central America", MinLat: 7, MaxLat: 18, MinLng: -92, MaxLng: -77},
	{Name: "Greater Antilles", MinLat: 17.5, MaxLat: 23.5, MinLng: -85, MaxLng: -65},
	{Name: "Northern South America", MinLat: -20, MaxLat: 13, MinLng: -82, MaxLng: -34},
	{Name: "Southern Brazil and Chile", MinLat: -34, MaxLat: -20, MinLng: -72, MaxLng: -40},
	{Name: "Southern Cone", MinLat: -56, MaxLat: -34, MinLng: -76, MaxLng: -56},
}

// IsLikelyWater reports whether the point falls in an ocean box and in no
// land box. The returned name identifies the ocean that matched.
func IsLikelyWater(lat, lng float64) (string, bool) {
	ocean, ok := find(OceanBoxes, lat, lng)
	if !ok {
		return "", false
	}
	if _, land := find(LandBoxes, lat, lng); land {
		return "", false
	}
	return ocean.Name, true
}

func find(boxes []Box, lat, lng float64) (Box, bool) {
	for _, b := range boxes {
		if b.Contains(lat, lng) {
			return b, true
		}
	}
	return Box{}, false
}

// DistanceKm returns the haversine great-circle distance between two points.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	φ1 := radians(lat1)
	φ2 := radians(lat2)
	dφ := radians(lat2 - lat1)
	dλ := radians(lng2 - lng1)

	a := math.Sin(dφ/2)*math.Sin(dφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
