package render

import (
	"html"
	"strings"

	"dashboard/internal/chart"

	"github.com/pkg/errors"
	"github.com/valyala/fasttemplate"
)

// DefaultCDN serves the vega bundles.
const DefaultCDN = "https://cdn.jsdelivr.net/npm"

// HTML embeds the Vega-Lite spec in a page that draws it with vega-embed.
type HTML struct {
	cdn  string
	tmpl *fasttemplate.Template
}

func NewHTML(cdn string) *HTML {
	if cdn == "" {
		cdn = DefaultCDN
	}
	return &HTML{cdn: strings.TrimSuffix(cdn, "/"), tmpl: parseTemplate("chart.html")}
}

func (r *HTML) Format() Format { return FormatHTML }

func (r *HTML) Render(c *chart.Chart) (*Document, error) {
	spec, err := c.Spec.JSON()
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s spec", c.Kind)
	}
	body, err := execute(r.tmpl, map[string][]byte{
		"title": []byte(html.EscapeString(c.Title)),
		"cdn":   []byte(html.EscapeString(r.cdn)),
		"spec":  spec,
	})
	if err != nil {
		return nil, err
	}
	return newDocument(body), nil
}
