package render

import (
	"bytes"
	"html"
	"io"
	"math"
	"strconv"
	"strings"

	"dashboard/internal/chart"
	"dashboard/internal/models"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// SVG draws a static approximation of each chart server side. It needs no
// script and no network access in the browser.
type SVG struct {
	tmpl *fasttemplate.Template
}

func NewSVG() *SVG {
	return &SVG{tmpl: parseTemplate("static.html")}
}

func (r *SVG) Format() Format { return FormatSVG }

func (r *SVG) Render(c *chart.Chart) (*Document, error) {
	var figures [][]byte
	var err error
	switch view := c.View.(type) {
	case *models.RankingView:
		figures, err = rankingSVG(c, view)
	case *models.TrendView:
		figures, err = trendSVG(c, view)
	case *models.MapView:
		figures, err = mapSVG(c, view)
	case *models.CountryView:
		if c.Kind == chart.KindCountryLocation {
			figures, err = locationSVG(view)
		} else {
			figures, err = countrySVG(c, view)
		}
	case *models.OverviewView:
		figures, err = overviewSVG(c, view)
	default:
		return nil, errors.Errorf("no static renderer for %T", c.View)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "render %s", c.Kind)
	}
	if len(figures) == 0 {
		return Empty(), nil
	}

	var body bytes.Buffer
	for _, f := range figures {
		body.WriteString("<figure>")
		body.Write(f)
		body.WriteString("</figure>\n")
	}
	doc, err := execute(r.tmpl, map[string][]byte{
		"title": []byte(html.EscapeString(c.Title)),
		"body":  body.Bytes(),
	})
	if err != nil {
		return nil, err
	}
	return newDocument(doc), nil
}

// continentColors maps each continent of the chart's colour domain onto the
// shared palette.
func continentColors(c *chart.Chart) map[string]drawing.Color {
	colors := make(map[string]drawing.Color, len(c.Continents))
	for i, name := range c.Continents {
		colors[name] = hexColor(chart.Palette[i%len(chart.Palette)])
	}
	return colors
}

func hexColor(hex string) drawing.Color {
	return drawing.ColorFromHex(strings.TrimPrefix(hex, "#"))
}

func draw(r interface {
	Render(gochart.RendererProvider, io.Writer) error
}) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.Render(gochart.SVG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func rankingSVG(c *chart.Chart, view *models.RankingView) ([][]byte, error) {
	if len(view.Rows) == 0 {
		return nil, nil
	}
	colors := continentColors(c)
	bars := make([]gochart.Value, len(view.Rows))
	for i, row := range view.Rows {
		col := colors[row.Continent]
		bars[i] = gochart.Value{
			Label: row.Label + " " + row.Country,
			Value: row.Value,
			Style: gochart.Style{FillColor: col, StrokeColor: col},
		}
	}
	bc := gochart.BarChart{
		Title:      c.Title,
		Width:      120 + len(bars)*28,
		Height:     420,
		BarWidth:   20,
		BarSpacing: 8,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 120}},
		XAxis:      gochart.Style{TextRotationDegrees: 90},
		YAxis:      gochart.YAxis{Name: view.Metric.AxisTitle()},
		Bars:       bars,
	}
	svg, err := draw(bc)
	if err != nil {
		return nil, err
	}
	return [][]byte{svg}, nil
}

func trendSVG(c *chart.Chart, view *models.TrendView) ([][]byte, error) {
	colors := continentColors(c)
	byContinent := make(map[string]*gochart.ContinuousSeries)
	lo, hi := math.Inf(1), math.Inf(-1)
	var series []gochart.Series
	for _, name := range view.Continents {
		s := &gochart.ContinuousSeries{
			Name:  name,
			Style: gochart.Style{StrokeColor: colors[name], StrokeWidth: 2},
		}
		byContinent[name] = s
	}
	for _, p := range view.Points {
		s, ok := byContinent[p.Continent]
		if !ok {
			continue
		}
		v := p.Value(view.Metric)
		s.XValues = append(s.XValues, float64(p.Year))
		s.YValues = append(s.YValues, v)
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	for _, name := range view.Continents {
		if s := byContinent[name]; len(s.XValues) > 0 {
			series = append(series, *s)
		}
	}
	if len(series) == 0 {
		return nil, nil
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	series = append(series, gochart.ContinuousSeries{
		Name:    strconv.Itoa(view.Year),
		XValues: []float64{float64(view.Year), float64(view.Year)},
		YValues: []float64{lo, hi},
		Style: gochart.Style{
			StrokeColor:     drawing.ColorBlack,
			StrokeWidth:     1,
			StrokeDashArray: []float64{10, 10},
		},
	})

	ch := gochart.Chart{
		Title:      c.Title,
		Width:      520,
		Height:     360,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 120, Bottom: 16}},
		XAxis:      gochart.XAxis{Name: "Year", ValueFormatter: gochart.IntValueFormatter},
		YAxis:      gochart.YAxis{Name: view.Metric.AverageTitle()},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.LegendLeft(&ch)}
	svg, err := draw(ch)
	if err != nil {
		return nil, err
	}
	return [][]byte{svg}, nil
}

// scatterByContinent groups points into one dot series per continent.
// radius returns the dot radius of point i.
func scatterByContinent(c *chart.Chart, n int, at func(i int) (continent string, x, y float64), radius func(i int) float64) []gochart.Series {
	colors := continentColors(c)
	type group struct {
		xs, ys, rs []float64
	}
	groups := make(map[string]*group)
	for i := 0; i < n; i++ {
		continent, x, y := at(i)
		g, ok := groups[continent]
		if !ok {
			g = &group{}
			groups[continent] = g
		}
		g.xs = append(g.xs, x)
		g.ys = append(g.ys, y)
		g.rs = append(g.rs, radius(i))
	}

	var series []gochart.Series
	for _, name := range c.Continents {
		g, ok := groups[name]
		if !ok {
			continue
		}
		rs := g.rs
		series = append(series, gochart.ContinuousSeries{
			Name:    name,
			XValues: g.xs,
			YValues: g.ys,
			Style: gochart.Style{
				StrokeWidth: gochart.Disabled,
				DotColor:    colors[name],
				DotWidthProvider: func(_, _ gochart.Range, index int, _, _ float64) float64 {
					return rs[index]
				},
			},
		})
	}
	return series
}

// Ranges are fresh per chart; rendering sets their domain.
func lonRange() gochart.Range { return &gochart.ContinuousRange{Min: -180, Max: 180} }
func latRange() gochart.Range { return &gochart.ContinuousRange{Min: -90, Max: 90} }

func mapSVG(c *chart.Chart, view *models.MapView) ([][]byte, error) {
	if len(view.Points) == 0 {
		return nil, nil
	}
	series := scatterByContinent(c, len(view.Points),
		func(i int) (string, float64, float64) {
			p := view.Points[i]
			return p.Continent, p.Lon, p.Lat
		},
		// Size is an area, as in the interactive map.
		func(i int) float64 { return math.Sqrt(view.Points[i].Size) / 2 },
	)

	ch := gochart.Chart{
		Title:      strconv.Itoa(view.Year) + " " + view.Metric.Label(),
		Width:      795,
		Height:     450,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{Range: lonRange()},
		YAxis:      gochart.YAxis{Range: latRange()},
		Series:     series,
	}
	svg, err := draw(ch)
	if err != nil {
		return nil, err
	}
	caption := "<figcaption>" + html.EscapeString(chart.TotalAnnotation(view)) + "</figcaption>"
	return [][]byte{append(svg, caption...)}, nil
}

func locationSVG(view *models.CountryView) ([][]byte, error) {
	if !view.HasPosition {
		return nil, nil
	}
	ch := gochart.Chart{
		Title:      view.Country,
		Width:      400,
		Height:     250,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis:      gochart.XAxis{Range: lonRange()},
		YAxis:      gochart.YAxis{Range: latRange()},
		Series: []gochart.Series{gochart.ContinuousSeries{
			Name:    view.Country,
			XValues: []float64{view.Lon},
			YValues: []float64{view.Lat},
			Style: gochart.Style{
				StrokeWidth: gochart.Disabled,
				DotColor:    hexColor("#e45756"),
				DotWidth:    6,
			},
		}},
	}
	svg, err := draw(ch)
	if err != nil {
		return nil, err
	}
	return [][]byte{svg}, nil
}

func countrySVG(c *chart.Chart, view *models.CountryView) ([][]byte, error) {
	if len(view.Years) == 0 {
		return nil, nil
	}
	col := hexColor(chart.Palette[0])
	for i, name := range c.Continents {
		if name == view.Continent {
			col = hexColor(chart.Palette[i%len(chart.Palette)])
		}
	}

	var figures [][]byte
	for _, m := range models.Metrics {
		bars := make([]gochart.Value, len(view.Years))
		for i, y := range view.Years {
			var v float64
			switch m {
			case models.Population:
				v = float64(y.Population)
			case models.LifeExpectancy:
				v = y.LifeExpectancy
			case models.GDPPerCapita:
				v = y.GDPPerCapita
			}
			bars[i] = gochart.Value{
				Label: strconv.Itoa(y.Year),
				Value: v,
				Style: gochart.Style{FillColor: col, StrokeColor: col},
			}
		}
		svg, err := draw(gochart.BarChart{
			Title:      view.Country + " " + m.Label(),
			Width:      80 + len(bars)*24,
			Height:     260,
			BarWidth:   16,
			BarSpacing: 8,
			Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 8, Right: 8, Bottom: 16}},
			YAxis:      gochart.YAxis{Name: m.AxisTitle()},
			Bars:       bars,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "%s bars", m)
		}
		figures = append(figures, svg)
	}
	return figures, nil
}

func overviewSVG(c *chart.Chart, view *models.OverviewView) ([][]byte, error) {
	if len(view.Points) == 0 {
		return nil, nil
	}
	series := scatterByContinent(c, len(view.Points),
		func(i int) (string, float64, float64) {
			p := view.Points[i]
			return p.Continent, float64(p.Year), p.Value
		},
		func(int) float64 { return 2 },
	)
	ch := gochart.Chart{
		Title:      c.Title,
		Width:      700,
		Height:     320,
		Background: gochart.Style{Padding: gochart.Box{Top: 40, Left: 16, Right: 120, Bottom: 16}},
		XAxis: gochart.XAxis{
			Name:           "Year",
			Range:          &gochart.ContinuousRange{Min: 1950, Max: 2007},
			ValueFormatter: gochart.IntValueFormatter,
		},
		YAxis:  gochart.YAxis{Name: view.Metric.AxisTitle()},
		Series: series,
	}
	ch.Elements = []gochart.Renderable{gochart.LegendLeft(&ch)}
	svg, err := draw(ch)
	if err != nil {
		return nil, err
	}
	return [][]byte{svg}, nil
}
