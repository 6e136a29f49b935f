package engine

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
)

const (
	fixtureRecords   = "testdata/gapminder_sample.csv"
	fixturePositions = "testdata/world_country_sample.csv"
)

func loadFixture(t *testing.T) *ColumnStore {
	t.Helper()
	store, err := Load(context.Background(), fixtureRecords, fixturePositions)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp(t.TempDir(), "data_*.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpFile.Name()
}

const smallRecords = `country,continent,year,lifeExp,pop,gdpPercap
Germany,Europe,1952,67.5,69145952,7144.114
France,Europe,1952,67.41,42459667,7029.809
"Korea, Dem. Rep.",Asia,1952,50.056,8865488,1088.277
Germany,Europe,1957,69.1,71019069,10187.83
France,Europe,1957,68.93,44310863,8662.835
`

const smallPositions = `,country,latitude,longitude
0,Germany,51.165691,10.451526
1,"Korea, Dem. Rep.",40.339852,127.510093
2,Spain,40.463667,-3.74922
`

func TestLoadColumnar(t *testing.T) {
	store, err := Load(context.Background(), writeTemp(t, smallRecords), writeTemp(t, smallPositions))
	if err != nil {
		t.Fatal(err)
	}

	// Expect 5 rows; positions never drop records from the store
	if store.Len() != 5 {
		t.Fatalf("Expected 5 rows, got %d", store.Len())
	}

	// Row 0 Check
	if store.Country(0) != "Germany" || store.Years[0] != 1952 {
		t.Errorf("Row 0: got %s %d", store.Country(0), store.Years[0])
	}
	if store.Populations[0] != 69145952 {
		t.Errorf("Row 0 Population: Expected 69145952, got %d", store.Populations[0])
	}
	if store.LifeExpectancies[0] != 67.5 {
		t.Errorf("Row 0 LifeExp: Expected 67.5, got %f", store.LifeExpectancies[0])
	}

	// Dictionary Checks
	if len(store.CountryDict) != 3 {
		t.Errorf("Expected 3 unique countries, got %d", len(store.CountryDict))
	}
	if len(store.ContinentDict) != 2 {
		t.Errorf("Expected 2 unique continents, got %d", len(store.ContinentDict))
	}

	// Join Checks: France has no position, Spain has no records
	if got := store.JoinedRows(); got != 3 {
		t.Errorf("Expected 3 joined rows, got %d", got)
	}
	if _, _, ok := store.Position("France"); ok {
		t.Error("France should have no position")
	}
	lat, lon, ok := store.Position("Korea, Dem. Rep.")
	if !ok || lat != 40.339852 || lon != 127.510093 {
		t.Errorf("Korea position: got %v %v %v", lat, lon, ok)
	}
	if store.HasCountry("Spain") {
		t.Error("Spain must not be in the store")
	}
}

func TestLoadFixture(t *testing.T) {
	store := loadFixture(t)

	if store.Len() != 167 {
		t.Fatalf("Expected 167 rows, got %d", store.Len())
	}
	if len(store.CountryDict) != 14 {
		t.Errorf("Expected 14 countries, got %d", len(store.CountryDict))
	}
	if got := store.JoinedRows(); got != 156 {
		t.Errorf("Expected 156 joined rows, got %d", got)
	}
	years := store.YearList()
	if len(years) != 12 || years[0] != 1952 || years[11] != 2007 {
		t.Errorf("Unexpected years %v", years)
	}
	if got := store.Continents(); !cmp.Equal(got, []string{"Africa", "Americas", "Asia", "Europe", "Oceania"}) {
		t.Errorf("Unexpected continents %v", got)
	}
}

func TestLoadDeterministic(t *testing.T) {
	a := loadFixture(t)
	b := loadFixture(t)

	if diff := cmp.Diff(a, b, cmpopts.IgnoreUnexported(ColumnStore{})); diff != "" {
		t.Errorf("stores differ (-first +second):\n%s", diff)
	}
	if a.Fingerprint() != b.Fingerprint() {
		t.Errorf("fingerprints differ: %x vs %x", a.Fingerprint(), b.Fingerprint())
	}
	if a.JoinedRows() != b.JoinedRows() {
		t.Errorf("join differs: %d vs %d", a.JoinedRows(), b.JoinedRows())
	}
}

func TestFingerprintChangesWithData(t *testing.T) {
	a, err := LoadReaders(context.Background(), strings.NewReader(smallRecords), strings.NewReader(smallPositions))
	if err != nil {
		t.Fatal(err)
	}
	changed := strings.Replace(smallRecords, "69145952", "69145953", 1)
	b, err := LoadReaders(context.Background(), strings.NewReader(changed), strings.NewReader(smallPositions))
	if err != nil {
		t.Fatal(err)
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("fingerprint should change when a value changes")
	}
}

func TestLoadReleasesArrowMemory(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	_, err := LoadReaders(context.Background(),
		strings.NewReader(smallRecords), strings.NewReader(smallPositions),
		WithAllocator(mem), WithChunkSize(2))
	if err != nil {
		t.Fatal(err)
	}
}

// scribbleAllocator overwrites every buffer it frees, so anything still
// pointing into a released batch reads garbage.
type scribbleAllocator struct {
	memory.Allocator
}

func (a scribbleAllocator) Free(b []byte) {
	for i := range b {
		b[i] = '#'
	}
	a.Allocator.Free(b)
}

func TestLoadCopiesStringsOutOfBatches(t *testing.T) {
	store, err := LoadReaders(context.Background(),
		strings.NewReader(smallRecords), strings.NewReader(smallPositions),
		WithAllocator(scribbleAllocator{memory.NewGoAllocator()}), WithChunkSize(2))
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"Germany", "France", "Korea, Dem. Rep."}
	if !cmp.Equal(store.CountryDict, want) {
		t.Errorf("CountryDict: %s", cmp.Diff(want, store.CountryDict))
	}
	if !cmp.Equal(store.ContinentDict, []string{"Europe", "Asia"}) {
		t.Errorf("Unexpected continents %v", store.ContinentDict)
	}
	if _, _, ok := store.Position("Korea, Dem. Rep."); !ok {
		t.Error("Korea should keep its position")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name      string
		records   string
		positions string
		reason    string
	}{
		{
			name:      "missing column",
			records:   "country,continent,year,lifeExp,pop\nGermany,Europe,1952,67.5,69145952\n",
			positions: smallPositions,
			reason:    `missing required column "gdp_per_capita"`,
		},
		{
			name:      "missing position column",
			records:   smallRecords,
			positions: "country,latitude\nGermany,51.1\n",
			reason:    `missing required column "lon"`,
		},
		{
			name:      "empty join",
			records:   smallRecords,
			positions: ",country,latitude,longitude\n0,Spain,40.4,-3.7\n",
			reason:    "join on country produced no rows",
		},
		{
			name:      "no records",
			records:   "country,continent,year,lifeExp,pop,gdpPercap\n",
			positions: smallPositions,
			reason:    "no records",
		},
		{
			name:      "empty source",
			records:   "",
			positions: smallPositions,
			reason:    "empty source",
		},
		{
			name:      "missing value",
			records:   "country,continent,year,lifeExp,pop,gdpPercap\nGermany,Europe,1952,,69145952,7144.1\n",
			positions: smallPositions,
			reason:    "row 1: missing value",
		},
		{
			name:      "duplicate row",
			records:   smallRecords + "Germany,Europe,1957,70,1,1\n",
			positions: smallPositions,
			reason:    "duplicate row for Germany in 1957",
		},
		{
			name:      "malformed value",
			records:   "country,continent,year,lifeExp,pop,gdpPercap\nGermany,Europe,1952,67.5,lots,7144.1\n",
			positions: smallPositions,
			reason:    "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadReaders(context.Background(), strings.NewReader(tt.records), strings.NewReader(tt.positions))
			var dle *DataLoadError
			if !errors.As(err, &dle) {
				t.Fatalf("Expected DataLoadError, got %v", err)
			}
			if dle.Reason != tt.reason {
				t.Errorf("Expected reason %q, got %q", tt.reason, dle.Reason)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), "testdata/does_not_exist.csv", fixturePositions)
	var dle *DataLoadError
	if !errors.As(err, &dle) {
		t.Fatalf("Expected DataLoadError, got %v", err)
	}
	if dle.Path != "testdata/does_not_exist.csv" || !os.IsNotExist(dle.Err) {
		t.Errorf("Unexpected error %+v", dle)
	}
}

func TestReadHeader(t *testing.T) {
	got := readHeader([]byte("\xef\xbb\xbf\"country\", year ,pop\r\nA,1,2\n"))
	want := []string{"country", "year", "pop"}
	if !cmp.Equal(got, want) {
		t.Errorf("readHeader: got %q, want %q", got, want)
	}
	if readHeader([]byte("\n")) != nil {
		t.Error("blank header should be nil")
	}
}
