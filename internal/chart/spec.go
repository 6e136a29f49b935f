package chart

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// SchemaURL is the Vega-Lite version every spec targets.
const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

// noLegend renders as `"legend": null`, which hides the legend.
var noLegend = json.RawMessage("null")

// Spec is the subset of a Vega-Lite specification the dashboard emits.
// Unit, layered and concatenated views share the type.
type Spec struct {
	Schema     string      `json:"$schema,omitempty"`
	Title      string      `json:"title,omitempty"`
	Width      int         `json:"width,omitempty"`
	Height     int         `json:"height,omitempty"`
	Data       *Data       `json:"data,omitempty"`
	Mark       *Mark       `json:"mark,omitempty"`
	Encoding   *Encoding   `json:"encoding,omitempty"`
	Projection *Projection `json:"projection,omitempty"`
	Params     []Param     `json:"params,omitempty"`
	Layer      []*Spec     `json:"layer,omitempty"`
	HConcat    []*Spec     `json:"hconcat,omitempty"`
	Config     *Config     `json:"config,omitempty"`
}

// Data rows and literals are held as pre-encoded JSON. go-json cannot
// encode interface values nested below Layer.
type Data struct {
	Values json.RawMessage `json:"values,omitempty"`
	URL    string      `json:"url,omitempty"`
	Format *DataFormat `json:"format,omitempty"`
}

type DataFormat struct {
	Type    string `json:"type"`
	Feature string `json:"feature,omitempty"`
}

type Mark struct {
	Type       string  `json:"type"`
	Fill       string  `json:"fill,omitempty"`
	Stroke     string  `json:"stroke,omitempty"`
	Color      string  `json:"color,omitempty"`
	Align      string  `json:"align,omitempty"`
	Baseline   string  `json:"baseline,omitempty"`
	Dx         int     `json:"dx,omitempty"`
	StrokeDash []int   `json:"strokeDash,omitempty"`
	Opacity    float64 `json:"opacity,omitempty"`
	Size       float64 `json:"size,omitempty"`
}

type Encoding struct {
	X         *Channel `json:"x,omitempty"`
	Y         *Channel `json:"y,omitempty"`
	Color     *Channel `json:"color,omitempty"`
	Size      *Channel `json:"size,omitempty"`
	Text      *Channel `json:"text,omitempty"`
	Tooltip   *Channel `json:"tooltip,omitempty"`
	Longitude *Channel `json:"longitude,omitempty"`
	Latitude  *Channel `json:"latitude,omitempty"`
}

// Channel is either a field definition or a constant value definition.
type Channel struct {
	Field  string          `json:"field,omitempty"`
	Type   string          `json:"type,omitempty"`
	Title  string          `json:"title,omitempty"`
	Sort   string          `json:"sort,omitempty"`
	Scale  *Scale          `json:"scale,omitempty"`
	Legend json.RawMessage `json:"legend,omitempty"`
	Format string          `json:"format,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
}

type Scale struct {
	Domain json.RawMessage `json:"domain,omitempty"`
	Range  json.RawMessage `json:"range,omitempty"`
}

type Projection struct {
	Type string `json:"type"`
}

// Param is a top-level selection parameter; bind "scales" makes the view
// pan/zoom.
type Param struct {
	Name   string `json:"name"`
	Select string `json:"select"`
	Bind   string `json:"bind,omitempty"`
}

type Config struct {
	Axis   *AxisConfig   `json:"axis,omitempty"`
	Legend *LegendConfig `json:"legend,omitempty"`
}

type AxisConfig struct {
	LabelFontSize int `json:"labelFontSize,omitempty"`
	TitleFontSize int `json:"titleFontSize,omitempty"`
}

type LegendConfig struct {
	TitleFontSize int `json:"titleFontSize,omitempty"`
}

// field is shorthand for a field channel.
func field(name, typ, title string) *Channel {
	return &Channel{Field: name, Type: typ, Title: title}
}

// value is shorthand for a constant channel.
func value(v interface{}) *Channel {
	return &Channel{Value: literal(v)}
}

// literal encodes a constant. It panics if v is not encodable, which for
// the numbers, strings and slices passed here means a NaN or Inf.
func literal(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(errors.Wrap(err, "encode chart literal"))
	}
	return b
}

// inline encodes data rows. A nil slice becomes [] so the layer keeps its
// data entry.
func inline(rows interface{}) (*Data, error) {
	b, err := json.Marshal(rows)
	if err != nil {
		return nil, errors.Wrap(err, "encode chart data")
	}
	if bytes.Equal(b, []byte("null")) {
		b = []byte("[]")
	}
	return &Data{Values: b}, nil
}

// JSON encodes the spec. Characters unsafe inside <script> are escaped.
func (s *Spec) JSON() ([]byte, error) {
	return json.Marshal(s)
}
