package models

import (
	"strings"

	"github.com/pkg/errors"
)

// Metric is the quantity currently visualized.
type Metric string

const (
	Population     Metric = "population"
	LifeExpectancy Metric = "life_expectancy"
	GDPPerCapita   Metric = "gdp_per_capita"
)

// Metrics lists every metric in dropdown order.
var Metrics = []Metric{Population, LifeExpectancy, GDPPerCapita}

// ParseMetric accepts the canonical names and the short Gapminder column
// codes (pop, lifeExp, gdpPercap).
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "population", "pop":
		return Population, nil
	case "life_expectancy", "lifeexp":
		return LifeExpectancy, nil
	case "gdp_per_capita", "gdppercap":
		return GDPPerCapita, nil
	}
	return "", errors.Errorf("unknown metric %q", s)
}

// Valid reports whether m is one of the canonical metrics. Aliases must go
// through ParseMetric first.
func (m Metric) Valid() bool {
	switch m {
	case Population, LifeExpectancy, GDPPerCapita:
		return true
	}
	return false
}

// Label is the short display name, e.g. "Life Expectancy".
func (m Metric) Label() string {
	switch m {
	case Population:
		return "Population"
	case LifeExpectancy:
		return "Life Expectancy"
	case GDPPerCapita:
		return "GDP per Capita"
	}
	return string(m)
}

// AxisTitle includes the unit where there is one.
func (m Metric) AxisTitle() string {
	switch m {
	case LifeExpectancy:
		return "Life Expectancy [years]"
	case GDPPerCapita:
		return "GDP per Capita [USD]"
	}
	return m.Label()
}

func (m Metric) AverageTitle() string {
	return "Average " + m.AxisTitle()
}

// Selectors is the UI state driving every derived view.
type Selectors struct {
	Year    int    `json:"year"`
	Metric  Metric `json:"metric"`
	Country string `json:"country"`
}

// Selector names one user-settable parameter.
type Selector string

const (
	YearSelector    Selector = "year"
	MetricSelector  Selector = "metric"
	CountrySelector Selector = "country"
)

func ParseSelector(s string) (Selector, error) {
	switch Selector(strings.ToLower(strings.TrimSpace(s))) {
	case YearSelector:
		return YearSelector, nil
	case MetricSelector:
		return MetricSelector, nil
	case CountrySelector:
		return CountrySelector, nil
	}
	return "", errors.Errorf("unknown selector %q", s)
}

// --- DERIVED VIEWS ---

type RankingRow struct {
	Rank      int     `json:"rank"`
	Label     string  `json:"label"`
	Country   string  `json:"country"`
	Continent string  `json:"continent"`
	Value     float64 `json:"value"`
}

type RankingView struct {
	Year   int          `json:"year"`
	Metric Metric       `json:"metric"`
	Rows   []RankingRow `json:"rows"`
}

// TrendPoint is the mean of every metric over one (year, continent) group.
type TrendPoint struct {
	Year           int     `json:"year"`
	Continent      string  `json:"continent"`
	Count          int     `json:"count"`
	Population     float64 `json:"population"`
	LifeExpectancy float64 `json:"life_expectancy"`
	GDPPerCapita   float64 `json:"gdp_per_capita"`
}

// Value returns the mean of m.
func (p TrendPoint) Value(m Metric) float64 {
	switch m {
	case Population:
		return p.Population
	case LifeExpectancy:
		return p.LifeExpectancy
	case GDPPerCapita:
		return p.GDPPerCapita
	}
	return 0
}

type TrendView struct {
	Year       int          `json:"year"`
	Metric     Metric       `json:"metric"`
	Continents []string     `json:"continents"`
	Points     []TrendPoint `json:"points"`
}

type MapPoint struct {
	Country   string  `json:"country"`
	Continent string  `json:"continent"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Value     float64 `json:"value"`
	Size      float64 `json:"size"`
}

type MapView struct {
	Year   int        `json:"year"`
	Metric Metric     `json:"metric"`
	Points []MapPoint `json:"points"`

	// MaxValue is the largest metric value among Points; it anchors the
	// size scale domain [0, MaxValue].
	MaxValue float64 `json:"max_value"`
	// Bound is the configured per-metric upper size; MaxSize is Bound
	// scaled by Ratio.
	Bound   float64 `json:"bound"`
	MaxSize int     `json:"max_size"`

	WorldTotal float64 `json:"world_total"`
	PeakTotal  float64 `json:"peak_total"`
	PeakYear   int     `json:"peak_year"`
	Ratio      float64 `json:"ratio"`
}

type CountryYear struct {
	Year           int     `json:"year"`
	Population     int64   `json:"population"`
	LifeExpectancy float64 `json:"life_expectancy"`
	GDPPerCapita   float64 `json:"gdp_per_capita"`
}

type CountryView struct {
	Country     string        `json:"country"`
	Continent   string        `json:"continent"`
	HasPosition bool          `json:"has_position"`
	Lat         float64       `json:"lat,omitempty"`
	Lon         float64       `json:"lon,omitempty"`
	Years       []CountryYear `json:"years"`
}

// OverviewPoint is one country/year observation of the metric-by-year scatter.
type OverviewPoint struct {
	Country   string  `json:"country"`
	Continent string  `json:"continent"`
	Year      int     `json:"year"`
	Value     float64 `json:"value"`
}

type OverviewView struct {
	Metric Metric          `json:"metric"`
	Points []OverviewPoint `json:"points"`
}
