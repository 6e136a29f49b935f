package api

import (
	_ "embed"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"

	"dashboard/internal/dashboard"
	"dashboard/internal/models"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasttemplate"
)

const pageTitle = "Our Changing World"

//go:embed templates/index.html
var indexHTML string

var indexTemplate = fasttemplate.New(indexHTML, "{{", "}}")

func options(values []string, labels []string, selected string) string {
	var b strings.Builder
	for i, v := range values {
		sel := ""
		if v == selected {
			sel = " selected"
		}
		fmt.Fprintf(&b, "        <option value=\"%s\"%s>%s</option>\n",
			html.EscapeString(v), sel, html.EscapeString(labels[i]))
	}
	return b.String()
}

// pageVars fills every tag of the index template. Panel placeholders get
// the initial-load documents, escaped for a srcdoc attribute.
func (h *Handler) pageVars() map[string]string {
	state := h.dash.Defaults()
	store := h.dash.Store()

	metrics := make([]string, len(models.Metrics))
	labels := make([]string, len(models.Metrics))
	for i, m := range models.Metrics {
		metrics[i], labels[i] = string(m), m.Label()
	}
	countries := store.Countries()

	years := store.YearList()
	step := 5
	if len(years) > 1 {
		step = years[1] - years[0]
	}
	var marks, yearLabels strings.Builder
	for _, y := range years {
		fmt.Fprintf(&marks, "        <option value=\"%d\" label=\"%d\"></option>\n", y, y)
		fmt.Fprintf(&yearLabels, "<span>%d</span>", y)
	}

	vars := map[string]string{
		"title":           html.EscapeString(pageTitle),
		"cdn":             html.EscapeString(h.cdn),
		"metric_options":  options(metrics, labels, string(state.Metric)),
		"country_options": options(countries, countries, state.Country),
		"year":            strconv.Itoa(state.Year),
		"year_marks":      marks.String(),
		"year_labels":     yearLabels.String(),
		"year_step":       strconv.Itoa(step),
	}
	if len(years) > 0 {
		vars["year_min"] = strconv.Itoa(years[0])
		vars["year_max"] = strconv.Itoa(years[len(years)-1])
	}

	docs := h.dash.Update(state)
	for _, p := range dashboard.Panels() {
		vars[string(p)+"_title"] = html.EscapeString(p.Title())
		if d, ok := docs[p]; ok {
			vars[string(p)] = html.EscapeString(d.String())
		}
	}
	return vars
}

// GetIndex serves the dashboard page with every panel already rendered
// for the default selectors.
func (h *Handler) GetIndex(c echo.Context) error {
	vars := h.pageVars()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, err := indexTemplate.ExecuteFunc(buf, func(w io.Writer, tag string) (int, error) {
		v, ok := vars[tag]
		if !ok {
			return 0, errors.Errorf("page tag %q has no value", tag)
		}
		return io.WriteString(w, v)
	})
	if err != nil {
		return errors.Wrap(err, "render page")
	}
	return c.HTMLBlob(http.StatusOK, buf.B)
}
