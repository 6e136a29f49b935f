package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/csv"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"
)

// Canonical column names. Source headers are mapped onto these through
// columnAliases.
const (
	colCountry        = "country"
	colContinent      = "continent"
	colYear           = "year"
	colPopulation     = "population"
	colLifeExpectancy = "life_expectancy"
	colGDPPerCapita   = "gdp_per_capita"
	colLat            = "lat"
	colLon            = "lon"
)

var columnAliases = map[string]string{
	"country":         colCountry,
	"continent":       colContinent,
	"year":            colYear,
	"pop":             colPopulation,
	"population":      colPopulation,
	"lifeexp":         colLifeExpectancy,
	"life_expectancy": colLifeExpectancy,
	"gdppercap":       colGDPPerCapita,
	"gdp_per_capita":  colGDPPerCapita,
	"latitude":        colLat,
	"lat":             colLat,
	"longitude":       colLon,
	"lon":             colLon,
}

var columnTypes = map[string]arrow.DataType{
	colCountry:        arrow.BinaryTypes.String,
	colContinent:      arrow.BinaryTypes.String,
	colYear:           arrow.PrimitiveTypes.Int64,
	colPopulation:     arrow.PrimitiveTypes.Float64,
	colLifeExpectancy: arrow.PrimitiveTypes.Float64,
	colGDPPerCapita:   arrow.PrimitiveTypes.Float64,
	colLat:            arrow.PrimitiveTypes.Float64,
	colLon:            arrow.PrimitiveTypes.Float64,
}

var (
	recordColumns   = []string{colCountry, colContinent, colYear, colPopulation, colLifeExpectancy, colGDPPerCapita}
	positionColumns = []string{colCountry, colLat, colLon}
)

type loadOptions struct {
	mem   memory.Allocator
	chunk int
}

// Option tunes the loader.
type Option func(*loadOptions)

// WithAllocator sets the allocator backing Arrow record batches.
func WithAllocator(mem memory.Allocator) Option {
	return func(o *loadOptions) { o.mem = mem }
}

// WithChunkSize sets the number of CSV rows per Arrow record batch.
func WithChunkSize(n int) Option {
	return func(o *loadOptions) {
		if n > 0 {
			o.chunk = n
		}
	}
}

type source struct {
	name    string
	content []byte
}

type rawRecords struct {
	countries  []string
	continents []string
	years      []int32
	pops       []int64
	lifeExps   []float64
	gdps       []float64
}

type position struct {
	lat, lon float64
}

// Load reads the record table and the position table from disk and joins
// them on country name.
func Load(ctx context.Context, recordsPath, positionsPath string, opts ...Option) (*ColumnStore, error) {
	return load(ctx, func() (source, error) {
		b, err := os.ReadFile(recordsPath)
		if err != nil {
			return source{}, &DataLoadError{Path: recordsPath, Reason: "read", Err: err}
		}
		return source{recordsPath, b}, nil
	}, func() (source, error) {
		b, err := os.ReadFile(positionsPath)
		if err != nil {
			return source{}, &DataLoadError{Path: positionsPath, Reason: "read", Err: err}
		}
		return source{positionsPath, b}, nil
	}, opts)
}

// LoadReaders is Load over already-open sources.
func LoadReaders(ctx context.Context, records, positions io.Reader, opts ...Option) (*ColumnStore, error) {
	return load(ctx, func() (source, error) {
		b, err := io.ReadAll(records)
		if err != nil {
			return source{}, &DataLoadError{Path: "records", Reason: "read", Err: err}
		}
		return source{"records", b}, nil
	}, func() (source, error) {
		b, err := io.ReadAll(positions)
		if err != nil {
			return source{}, &DataLoadError{Path: "positions", Reason: "read", Err: err}
		}
		return source{"positions", b}, nil
	}, opts)
}

func load(ctx context.Context, readRecords, readPositions func() (source, error), opts []Option) (*ColumnStore, error) {
	start := time.Now()
	o := loadOptions{mem: memory.NewGoAllocator(), chunk: 1024}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		recs      *rawRecords
		positions map[string]position
		recsName  string
	)

	// Both sources are independent until the join.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		src, err := readRecords()
		if err != nil {
			return err
		}
		recsName = src.name
		recs, err = parseRecords(gctx, src, &o)
		return err
	})
	g.Go(func() error {
		src, err := readPositions()
		if err != nil {
			return err
		}
		positions, err = parsePositions(gctx, src, &o)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	store, err := join(recsName, recs, positions)
	if err != nil {
		return nil, err
	}

	log.Infof("Load Complete. Rows: %d. Joined: %d. Countries: %d. Time: %v",
		store.Len(), store.JoinedRows(), len(store.CountryDict), time.Since(start))
	return store, nil
}

// --- 1. HEADER / SCHEMA ---

// readHeader returns the raw header names of a CSV source.
func readHeader(content []byte) []string {
	line, _, _ := bytes.Cut(content, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	line = bytes.TrimPrefix(line, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(line)) == 0 {
		return nil
	}
	fields := strings.Split(string(line), ",")
	for i, f := range fields {
		fields[i] = strings.Trim(strings.TrimSpace(f), `"`)
	}
	return fields
}

// buildSchema maps the header onto canonical columns. Unknown columns
// (such as a leading index column) are kept as strings and ignored later.
// It returns the schema and the position of every required column.
func buildSchema(name string, header []string, required []string) (*arrow.Schema, map[string]int, error) {
	fields := make([]arrow.Field, len(header))
	index := make(map[string]int)
	for i, h := range header {
		canon, ok := columnAliases[strings.ToLower(h)]
		if ok {
			if _, dup := index[canon]; !dup {
				index[canon] = i
				fields[i] = arrow.Field{Name: canon, Type: columnTypes[canon], Nullable: true}
				continue
			}
		}
		if h == "" {
			h = fmt.Sprintf("column_%d", i)
		}
		fields[i] = arrow.Field{Name: "ignored_" + h, Type: arrow.BinaryTypes.String, Nullable: true}
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return nil, nil, &DataLoadError{Path: name, Reason: fmt.Sprintf("missing required column %q", col)}
		}
	}
	return arrow.NewSchema(fields, nil), index, nil
}

// --- 2. PARSERS ---

func newReader(src source, schema *arrow.Schema, o *loadOptions) *csv.Reader {
	return csv.NewReader(bytes.NewReader(src.content), schema,
		csv.WithHeader(true),
		csv.WithChunk(o.chunk),
		csv.WithAllocator(o.mem),
		csv.WithNullReader(true, "", "NA"),
	)
}

func parseRecords(ctx context.Context, src source, o *loadOptions) (*rawRecords, error) {
	header := readHeader(src.content)
	if header == nil {
		return nil, &DataLoadError{Path: src.name, Reason: "empty source"}
	}
	schema, idx, err := buildSchema(src.name, header, recordColumns)
	if err != nil {
		return nil, err
	}

	rdr := newReader(src, schema, o)
	defer rdr.Release()

	out := &rawRecords{}
	row := 0
	for rdr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := rdr.Record()
		countries := rec.Column(idx[colCountry]).(*array.String)
		continents := rec.Column(idx[colContinent]).(*array.String)
		years := rec.Column(idx[colYear]).(*array.Int64)
		pops := rec.Column(idx[colPopulation]).(*array.Float64)
		lifeExps := rec.Column(idx[colLifeExpectancy]).(*array.Float64)
		gdps := rec.Column(idx[colGDPPerCapita]).(*array.Float64)

		for i := 0; i < int(rec.NumRows()); i++ {
			row++
			if countries.IsNull(i) || continents.IsNull(i) || years.IsNull(i) ||
				pops.IsNull(i) || lifeExps.IsNull(i) || gdps.IsNull(i) {
				// Arrow appends a null for a value it cannot parse and
				// records the failure on the reader.
				if err := rdr.Err(); err != nil {
					return nil, &DataLoadError{Path: src.name, Reason: "parse", Err: err}
				}
				return nil, &DataLoadError{Path: src.name, Reason: fmt.Sprintf("row %d: missing value", row)}
			}
			// Value aliases the batch buffer, which is released on Next.
			out.countries = append(out.countries, strings.Clone(countries.Value(i)))
			out.continents = append(out.continents, strings.Clone(continents.Value(i)))
			out.years = append(out.years, int32(years.Value(i)))
			out.pops = append(out.pops, int64(math.Round(pops.Value(i))))
			out.lifeExps = append(out.lifeExps, lifeExps.Value(i))
			out.gdps = append(out.gdps, gdps.Value(i))
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, &DataLoadError{Path: src.name, Reason: "parse", Err: err}
	}
	if len(out.years) == 0 {
		return nil, &DataLoadError{Path: src.name, Reason: "no records"}
	}
	return out, nil
}

func parsePositions(ctx context.Context, src source, o *loadOptions) (map[string]position, error) {
	header := readHeader(src.content)
	if header == nil {
		return nil, &DataLoadError{Path: src.name, Reason: "empty source"}
	}
	schema, idx, err := buildSchema(src.name, header, positionColumns)
	if err != nil {
		return nil, err
	}

	rdr := newReader(src, schema, o)
	defer rdr.Release()

	out := make(map[string]position)
	for rdr.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := rdr.Record()
		countries := rec.Column(idx[colCountry]).(*array.String)
		lats := rec.Column(idx[colLat]).(*array.Float64)
		lons := rec.Column(idx[colLon]).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			// Rows without coordinates cannot be placed; they simply do
			// not join.
			if countries.IsNull(i) || lats.IsNull(i) || lons.IsNull(i) {
				continue
			}
			name := strings.Clone(countries.Value(i))
			if _, dup := out[name]; dup {
				continue
			}
			out[name] = position{lat: lats.Value(i), lon: lons.Value(i)}
		}
	}
	if err := rdr.Err(); err != nil {
		return nil, &DataLoadError{Path: src.name, Reason: "parse", Err: err}
	}
	return out, nil
}

// --- 3. JOIN ---

func join(name string, recs *rawRecords, positions map[string]position) (*ColumnStore, error) {
	n := len(recs.years)
	store := &ColumnStore{
		Years:            recs.years,
		Populations:      recs.pops,
		LifeExpectancies: recs.lifeExps,
		GDPPerCapitas:    recs.gdps,
		CountryIDs:       make([]int32, n),
		ContinentIDs:     make([]int32, n),
		countryIndex:     make(map[string]int32),
	}

	continentIndex := make(map[string]int32)
	type key struct {
		country int32
		year    int32
	}
	seen := make(map[key]bool, n)

	for i := 0; i < n; i++ {
		c := recs.countries[i]
		cid, ok := store.countryIndex[c]
		if !ok {
			cid = int32(len(store.CountryDict))
			store.CountryDict = append(store.CountryDict, c)
			store.countryIndex[c] = cid
		}
		store.CountryIDs[i] = cid

		ct := recs.continents[i]
		tid, ok := continentIndex[ct]
		if !ok {
			tid = int32(len(store.ContinentDict))
			store.ContinentDict = append(store.ContinentDict, ct)
			continentIndex[ct] = tid
		}
		store.ContinentIDs[i] = tid

		k := key{cid, recs.years[i]}
		if seen[k] {
			return nil, &DataLoadError{Path: name, Reason: fmt.Sprintf("duplicate row for %s in %d", c, recs.years[i])}
		}
		seen[k] = true
	}

	store.Lats = make([]float64, len(store.CountryDict))
	store.Lons = make([]float64, len(store.CountryDict))
	store.HasPosition = make([]bool, len(store.CountryDict))
	for cid, c := range store.CountryDict {
		if p, ok := positions[c]; ok {
			store.Lats[cid], store.Lons[cid] = p.lat, p.lon
			store.HasPosition[cid] = true
		}
	}

	if store.JoinedRows() == 0 {
		return nil, &DataLoadError{Path: name, Reason: "join on country produced no rows"}
	}
	return store, nil
}
