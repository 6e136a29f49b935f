package engine

import (
	"fmt"
	"sort"

	"dashboard/internal/models"

	"github.com/aclements/go-gg/table"
	"github.com/aclements/go-moremath/scale"
	"github.com/aclements/go-moremath/stats"
	"github.com/pkg/errors"
)

func checkMetric(m models.Metric) error {
	if !m.Valid() {
		return errors.Errorf("unknown metric %q", m)
	}
	return nil
}

// rowsForYear returns the indices of the records observed in year.
func (cs *ColumnStore) rowsForYear(year int) []int {
	var idx []int
	for i, y := range cs.Years {
		if int(y) == year {
			idx = append(idx, i)
		}
	}
	return idx
}

// Ranking filters the table to year and orders it by m, largest first.
// Rank labels are generated for exactly the rows present that year.
func (cs *ColumnStore) Ranking(year int, m models.Metric) (*models.RankingView, error) {
	if err := checkMetric(m); err != nil {
		return nil, err
	}
	idx := cs.rowsForYear(year)
	if len(idx) == 0 {
		return nil, &UnknownYearError{Year: year}
	}

	sort.Slice(idx, func(a, b int) bool {
		va, vb := cs.Value(idx[a], m), cs.Value(idx[b], m)
		if va != vb {
			return va > vb
		}
		return cs.Country(idx[a]) < cs.Country(idx[b])
	})

	view := &models.RankingView{Year: year, Metric: m, Rows: make([]models.RankingRow, len(idx))}
	for rank, i := range idx {
		view.Rows[rank] = models.RankingRow{
			Rank:      rank + 1,
			Label:     fmt.Sprintf("#%d", rank+1),
			Country:   cs.Country(i),
			Continent: cs.Continent(i),
			Value:     cs.Value(i, m),
		}
	}
	return view, nil
}

// Trend averages every metric per (year, continent) over the whole table.
// year only positions the marker; it never filters.
func (cs *ColumnStore) Trend(year int, m models.Metric) (*models.TrendView, error) {
	if err := checkMetric(m); err != nil {
		return nil, err
	}

	g := table.GroupBy(cs.Table(), "year", "continent")
	view := &models.TrendView{Year: year, Metric: m, Continents: cs.Continents()}
	for _, gid := range g.Tables() {
		t := g.Table(gid)
		view.Points = append(view.Points, models.TrendPoint{
			Year:           gid.Parent().Label().(int),
			Continent:      gid.Label().(string),
			Count:          t.Len(),
			Population:     stats.Mean(t.MustColumn(string(models.Population)).([]float64)),
			LifeExpectancy: stats.Mean(t.MustColumn(string(models.LifeExpectancy)).([]float64)),
			GDPPerCapita:   stats.Mean(t.MustColumn(string(models.GDPPerCapita)).([]float64)),
		})
	}

	sort.Slice(view.Points, func(a, b int) bool {
		pa, pb := view.Points[a], view.Points[b]
		if pa.Continent != pb.Continent {
			return pa.Continent < pb.Continent
		}
		return pa.Year < pb.Year
	})
	return view, nil
}

// yearTotals sums m per year over every record, positioned or not.
func (cs *ColumnStore) yearTotals(m models.Metric) map[int]float64 {
	totals := make(map[int]float64)
	for i, y := range cs.Years {
		totals[int(y)] += cs.Value(i, m)
	}
	return totals
}

// Map places one marker per positioned country observed in year. Marker
// size maps [0, max value in year] linearly onto [0, MaxSize], where
// MaxSize is bound scaled by the year's share of the peak yearly total.
func (cs *ColumnStore) Map(year int, m models.Metric, bound float64) (*models.MapView, error) {
	if err := checkMetric(m); err != nil {
		return nil, err
	}
	if bound < 0 {
		return nil, errors.Errorf("negative map bound %v for %s", bound, m)
	}
	idx := cs.rowsForYear(year)
	if len(idx) == 0 {
		return nil, &UnknownYearError{Year: year}
	}

	totals := cs.yearTotals(m)
	view := &models.MapView{Year: year, Metric: m, Bound: bound, WorldTotal: totals[year]}
	for y, total := range totals {
		if total > view.PeakTotal || (total == view.PeakTotal && y < view.PeakYear) {
			view.PeakTotal, view.PeakYear = total, y
		}
	}
	if view.PeakTotal > 0 {
		view.Ratio = view.WorldTotal / view.PeakTotal
	}
	view.MaxSize = int(view.Ratio * bound)

	for _, i := range idx {
		cid := cs.CountryIDs[i]
		if !cs.HasPosition[cid] {
			continue
		}
		v := cs.Value(i, m)
		if v > view.MaxValue {
			view.MaxValue = v
		}
		view.Points = append(view.Points, models.MapPoint{
			Country:   cs.CountryDict[cid],
			Continent: cs.Continent(i),
			Lat:       cs.Lats[cid],
			Lon:       cs.Lons[cid],
			Value:     v,
		})
	}

	if view.MaxValue > 0 {
		sc := scale.Linear{Min: 0, Max: view.MaxValue, Clamp: true}
		for i := range view.Points {
			view.Points[i].Size = sc.Map(view.Points[i].Value) * float64(view.MaxSize)
		}
	}
	return view, nil
}

// CountryDetail returns the full year range of one country.
func (cs *ColumnStore) CountryDetail(name string) (*models.CountryView, error) {
	cid, ok := cs.countryIndex[name]
	if !ok {
		return nil, &UnknownCountryError{Country: name}
	}

	view := &models.CountryView{Country: name}
	if cs.HasPosition[cid] {
		view.HasPosition = true
		view.Lat, view.Lon = cs.Lats[cid], cs.Lons[cid]
	}
	for i, id := range cs.CountryIDs {
		if id != cid {
			continue
		}
		view.Continent = cs.Continent(i)
		view.Years = append(view.Years, models.CountryYear{
			Year:           int(cs.Years[i]),
			Population:     cs.Populations[i],
			LifeExpectancy: cs.LifeExpectancies[i],
			GDPPerCapita:   cs.GDPPerCapitas[i],
		})
	}
	sort.Slice(view.Years, func(a, b int) bool { return view.Years[a].Year < view.Years[b].Year })
	return view, nil
}

// Overview lists every observation of m, ordered by country then year.
func (cs *ColumnStore) Overview(m models.Metric) (*models.OverviewView, error) {
	if err := checkMetric(m); err != nil {
		return nil, err
	}
	view := &models.OverviewView{Metric: m, Points: make([]models.OverviewPoint, cs.Len())}
	for i := 0; i < cs.Len(); i++ {
		view.Points[i] = models.OverviewPoint{
			Country:   cs.Country(i),
			Continent: cs.Continent(i),
			Year:      int(cs.Years[i]),
			Value:     cs.Value(i, m),
		}
	}
	sort.SliceStable(view.Points, func(a, b int) bool {
		pa, pb := view.Points[a], view.Points[b]
		if pa.Country != pb.Country {
			return pa.Country < pb.Country
		}
		return pa.Year < pb.Year
	})
	return view, nil
}
