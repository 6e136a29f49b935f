package engine

import (
	"encoding/binary"
	"math"
	"sort"

	"dashboard/internal/models"

	"github.com/aclements/go-gg/table"
	"github.com/zeebo/xxh3"
)

// ColumnStore holds the Gapminder table in Struct-of-Arrays format.
// It is built once by the loader and never mutated afterwards, so it can be
// shared by reference across requests.
type ColumnStore struct {
	// Data Columns (Flat Arrays, one entry per record)
	Years            []int32
	Populations      []int64
	LifeExpectancies []float64
	GDPPerCapitas    []float64

	// Dictionary Encoded IDs (0..N)
	CountryIDs   []int32
	ContinentIDs []int32

	// Dictionaries (ID -> String)
	CountryDict   []string
	ContinentDict []string

	// Positions, indexed by country ID
	Lats        []float64
	Lons        []float64
	HasPosition []bool

	countryIndex map[string]int32
}

// Len is the number of records.
func (cs *ColumnStore) Len() int {
	return len(cs.Years)
}

// Value returns metric m of record i.
func (cs *ColumnStore) Value(i int, m models.Metric) float64 {
	switch m {
	case models.Population:
		return float64(cs.Populations[i])
	case models.LifeExpectancy:
		return cs.LifeExpectancies[i]
	case models.GDPPerCapita:
		return cs.GDPPerCapitas[i]
	}
	return math.NaN()
}

func (cs *ColumnStore) Country(i int) string {
	return cs.CountryDict[cs.CountryIDs[i]]
}

func (cs *ColumnStore) Continent(i int) string {
	return cs.ContinentDict[cs.ContinentIDs[i]]
}

// YearList returns the distinct years, ascending.
func (cs *ColumnStore) YearList() []int {
	seen := make(map[int32]bool)
	var years []int
	for _, y := range cs.Years {
		if !seen[y] {
			seen[y] = true
			years = append(years, int(y))
		}
	}
	sort.Ints(years)
	return years
}

// Countries returns the distinct country names, ascending.
func (cs *ColumnStore) Countries() []string {
	out := append([]string(nil), cs.CountryDict...)
	sort.Strings(out)
	return out
}

// Continents returns the distinct continent names, ascending.
func (cs *ColumnStore) Continents() []string {
	out := append([]string(nil), cs.ContinentDict...)
	sort.Strings(out)
	return out
}

func (cs *ColumnStore) HasCountry(name string) bool {
	_, ok := cs.countryIndex[name]
	return ok
}

// Position returns the joined (lat, lon) of a country.
func (cs *ColumnStore) Position(name string) (lat, lon float64, ok bool) {
	id, found := cs.countryIndex[name]
	if !found || !cs.HasPosition[id] {
		return 0, 0, false
	}
	return cs.Lats[id], cs.Lons[id], true
}

// JoinedRows counts the records that matched a position.
func (cs *ColumnStore) JoinedRows() int {
	n := 0
	for _, cid := range cs.CountryIDs {
		if cs.HasPosition[cid] {
			n++
		}
	}
	return n
}

// Fingerprint hashes every column in row order. Two stores loaded from
// identical sources have identical fingerprints.
func (cs *ColumnStore) Fingerprint() uint64 {
	h := xxh3.New()
	var buf [8]byte
	putFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}
	for i := 0; i < cs.Len(); i++ {
		h.WriteString(cs.Country(i))
		h.Write([]byte{0})
		h.WriteString(cs.Continent(i))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], uint64(cs.Years[i]))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(cs.Populations[i]))
		h.Write(buf[:])
		putFloat(cs.LifeExpectancies[i])
		putFloat(cs.GDPPerCapitas[i])

		cid := cs.CountryIDs[i]
		if cs.HasPosition[cid] {
			putFloat(cs.Lats[cid])
			putFloat(cs.Lons[cid])
		}
	}
	return h.Sum64()
}

// Table exposes the records as a go-gg table. Metric columns are named
// after models.Metric and are all []float64.
func (cs *ColumnStore) Table() *table.Table {
	n := cs.Len()
	countries := make([]string, n)
	continents := make([]string, n)
	years := make([]int, n)
	pops := make([]float64, n)
	for i := 0; i < n; i++ {
		countries[i] = cs.Country(i)
		continents[i] = cs.Continent(i)
		years[i] = int(cs.Years[i])
		pops[i] = float64(cs.Populations[i])
	}
	return new(table.Builder).
		Add("country", countries).
		Add("continent", continents).
		Add("year", years).
		Add(string(models.Population), pops).
		Add(string(models.LifeExpectancy), cs.LifeExpectancies).
		Add(string(models.GDPPerCapita), cs.GDPPerCapitas).
		Done()
}
