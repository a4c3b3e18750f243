package glacier

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/paulmach/orb"
)

// TerminusType is the RGI termination type of a glacier.
type TerminusType int

const (
	TerminusLand TerminusType = iota
	TerminusMarine
	TerminusLake
)

func (t TerminusType) String() string {
	switch t {
	case TerminusMarine:
		return "Marine-terminating"
	case TerminusLake:
		return "Lake-terminating"
	default:
		return "Land-terminating"
	}
}

// ParseTerminusType accepts RGI TermType codes ("0", "1", "2") or names.
func ParseTerminusType(s string) (TerminusType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "land", "land-terminating":
		return TerminusLand, nil
	case "1", "marine", "marine-terminating", "tidewater":
		return TerminusMarine, nil
	case "2", "lake", "lake-terminating":
		return TerminusLake, nil
	default:
		return TerminusLand, errors.Newf("unknown terminus type %q", s)
	}
}

// Outline is one inventory record: the glacier polygon in geodetic
// (lon/lat) coordinates plus its attributes.
type Outline struct {
	ID       string
	Name     string
	Region   string
	Polygon  orb.Polygon
	Area     float64 // km², 0 when the inventory supplied none
	Centroid orb.Point
	Terminus TerminusType
}

// HasArea reports whether the inventory supplied an authoritative area.
func (o Outline) HasArea() bool {
	return o.Area > 0
}

// Clone returns a deep copy.
func (o Outline) Clone() Outline {
	c := o
	c.Polygon = o.Polygon.Clone()
	return c
}
