// Package ephemeris computes sidereal chart positions. The Calculator
// interface is the contract; the built-in implementation trades precision for
// a pure Go build, and a Swiss Ephemeris binding can be swapped in behind the
// same interface.
package ephemeris

import (
	"context"

	"github.com/sivanadi/AstroCalc/internal/model"
)

// Ayanamsha selects the sidereal zodiac offset.
type Ayanamsha string

const (
	AyanamshaLahiri       Ayanamsha = "lahiri"
	AyanamshaRaman        Ayanamsha = "raman"
	AyanamshaKrishnamurti Ayanamsha = "krishnamurti"
	AyanamshaFaganBradley Ayanamsha = "fagan_bradley"
)

// ParseAyanamsha maps a request parameter to a supported ayanamsha. The empty
// string selects Lahiri; anything else unknown is rejected rather than
// silently defaulted.
func ParseAyanamsha(s string) (Ayanamsha, error) {
	switch Ayanamsha(s) {
	case "":
		return AyanamshaLahiri, nil
	case AyanamshaLahiri, AyanamshaRaman, AyanamshaKrishnamurti, AyanamshaFaganBradley:
		return Ayanamsha(s), nil
	}
	return "", &model.ValidationError{Field: "ayanamsha", Reason: "unknown ayanamsha " + s}
}

// HouseSystem selects how house cusps are derived from the ascendant.
type HouseSystem string

const (
	HousePlacidus  HouseSystem = "placidus"
	HouseWholeSign HouseSystem = "whole_sign"
	HouseEqual     HouseSystem = "equal"
	HouseKoch      HouseSystem = "koch"
)

// ParseHouseSystem maps a request parameter to a supported house system,
// defaulting to Placidus for the empty string.
func ParseHouseSystem(s string) (HouseSystem, error) {
	switch HouseSystem(s) {
	case "":
		return HousePlacidus, nil
	case HousePlacidus, HouseWholeSign, HouseEqual, HouseKoch:
		return HouseSystem(s), nil
	}
	return "", &model.ValidationError{Field: "house_system", Reason: "unknown house system " + s}
}

// The nine bodies of a Vedic chart. Rahu is the mean lunar north node and
// Ketu is its antipode.
var Planets = []string{
	"Sun", "Moon", "Mars", "Mercury", "Jupiter", "Venus", "Saturn", "Rahu", "Ketu",
}

// Request describes one chart computation. Hour is Universal Time as a
// decimal (15.5 means 15:30 UT). Latitude is positive north, longitude
// positive east.
type Request struct {
	Year        int
	Month       int
	Day         int
	Hour        float64
	Lat         float64
	Lon         float64
	Ayanamsha   Ayanamsha
	HouseSystem HouseSystem
}

// Validate checks the request bounds.
func (r Request) Validate() error {
	if r.Month < 1 || r.Month > 12 {
		return &model.ValidationError{Field: "month", Reason: "must be between 1 and 12"}
	}
	if r.Day < 1 || r.Day > 31 {
		return &model.ValidationError{Field: "day", Reason: "must be between 1 and 31"}
	}
	if r.Hour < 0 || r.Hour >= 24 {
		return &model.ValidationError{Field: "hour", Reason: "must be between 0 and 24"}
	}
	if r.Lat < -90 || r.Lat > 90 {
		return &model.ValidationError{Field: "lat", Reason: "must be between -90 and 90 degrees"}
	}
	if r.Lon < -180 || r.Lon > 180 {
		return &model.ValidationError{Field: "lon", Reason: "must be between -180 and 180 degrees"}
	}
	return nil
}

// Result is one computed chart. Longitudes are sidereal degrees rounded to
// two decimals; the julian day is rounded to six.
type Result struct {
	JulianDayUT  float64            `json:"julian_day_ut"`
	AscendantDeg float64            `json:"ascendant_deg"`
	CuspsDeg     []float64          `json:"cusps_deg,omitempty"`
	PlanetsDeg   map[string]float64 `json:"planets_deg"`
}

// Calculator computes a sidereal chart for a validated request.
type Calculator interface {
	Chart(ctx context.Context, req Request) (*Result, error)
}
