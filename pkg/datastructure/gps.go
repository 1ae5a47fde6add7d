package datastructure

import "github.com/lintang-b-s/tracematch/pkg/geo"

// Measurement. one noisy gps sample of a trace. immutable.
type Measurement struct {
	lon float64
	lat float64
}

func NewMeasurement(lat, lon float64) Measurement {
	return Measurement{
		lon: lon,
		lat: lat,
	}
}

func (m Measurement) Lon() float64 {
	return m.lon
}

func (m Measurement) Lat() float64 {
	return m.lat
}

func (m Measurement) LngLat() geo.Coordinate {
	return geo.NewCoordinate(m.lat, m.lon)
}
