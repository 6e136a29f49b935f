package render

import (
	"embed"
	"fmt"
	"io"
	"strings"

	"dashboard/internal/chart"

	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasttemplate"
	"github.com/zeebo/xxh3"
)

//go:embed templates/*.html
var templates embed.FS

// Format selects a renderer.
type Format string

const (
	FormatHTML Format = "html"
	FormatSVG  Format = "svg"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatHTML, "":
		return FormatHTML, nil
	case FormatSVG:
		return FormatSVG, nil
	}
	return "", errors.Errorf("unknown render format %q", s)
}

// Document is a complete HTML page suitable for an iframe srcdoc.
type Document struct {
	Body []byte
	// ETag is a quoted strong validator over Body.
	ETag  string
	Empty bool
}

func newDocument(body []byte) *Document {
	return &Document{Body: body, ETag: fmt.Sprintf(`"%016x"`, xxh3.Hash(body))}
}

func (d *Document) String() string {
	return string(d.Body)
}

var emptyDocument = func() *Document {
	d := newDocument(mustTemplate("empty.html"))
	d.Empty = true
	return d
}()

// Empty is the placeholder shown when a builder had nothing to draw.
func Empty() *Document {
	return emptyDocument
}

// Renderer turns a built chart into a document.
type Renderer interface {
	Render(c *chart.Chart) (*Document, error)
	Format() Format
}

// New returns the renderer for format. cdn is the base URL the HTML renderer
// loads vega, vega-lite and vega-embed from.
func New(format Format, cdn string) (Renderer, error) {
	switch format {
	case FormatHTML:
		return NewHTML(cdn), nil
	case FormatSVG:
		return NewSVG(), nil
	}
	return nil, errors.Errorf("unknown render format %q", format)
}

func mustTemplate(name string) []byte {
	b, err := templates.ReadFile("templates/" + name)
	if err != nil {
		panic(errors.Wrapf(err, "read template %s", name))
	}
	return b
}

func parseTemplate(name string) *fasttemplate.Template {
	return fasttemplate.New(string(mustTemplate(name)), "{{", "}}")
}

// execute fills t from vars into a pooled buffer and returns a copy.
func execute(t *fasttemplate.Template, vars map[string][]byte) ([]byte, error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, err := t.ExecuteFunc(buf, func(w io.Writer, tag string) (int, error) {
		v, ok := vars[tag]
		if !ok {
			return 0, errors.Errorf("template tag %q has no value", tag)
		}
		return w.Write(v)
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.B...), nil
}
