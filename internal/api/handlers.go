package api

import (
	"net/http"
	"strconv"
	"strings"

	"dashboard/internal/dashboard"
	"dashboard/internal/engine"
	"dashboard/internal/models"
	"dashboard/internal/render"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	dash *dashboard.Dashboard
	cdn  string
}

func NewHandler(dash *dashboard.Dashboard, cdn string) *Handler {
	if cdn == "" {
		cdn = render.DefaultCDN
	}
	return &Handler{dash: dash, cdn: strings.TrimSuffix(cdn, "/")}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.GetIndex)
	e.GET("/healthz", h.GetHealth)
	e.GET("/charts/:panel", h.GetChart)

	api := e.Group("/api")
	api.GET("/update", h.GetUpdate)
	api.POST("/update", h.PostUpdate)
	api.GET("/selectors", h.GetSelectors)
	api.GET("/views/ranking", h.GetRanking)
	api.GET("/views/trend", h.GetTrend)
	api.GET("/views/map", h.GetMap)
	api.GET("/views/country", h.GetCountry)
	api.GET("/views/overview", h.GetOverview)
}

// --- HELPERS ---
func getPaginationParams(c echo.Context, defaultLimit int) (int, int) {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	offset, err := strconv.Atoi(c.QueryParam("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// getSelectors reads year, metric and country from the query, falling back
// to the dashboard defaults for absent parameters.
func (h *Handler) getSelectors(c echo.Context) (models.Selectors, error) {
	state := h.dash.Defaults()
	if v := c.QueryParam("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			return state, echo.NewHTTPError(http.StatusBadRequest, "invalid year "+strconv.Quote(v))
		}
		state.Year = year
	}
	if v := c.QueryParam("metric"); v != "" {
		m, err := models.ParseMetric(v)
		if err != nil {
			return state, echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		state.Metric = m
	}
	if v, ok := c.QueryParams()["country"]; ok && len(v) > 0 {
		state.Country = v[0]
	}
	return state, nil
}

func parseChanged(values []string) ([]models.Selector, error) {
	var changed []models.Selector
	for _, v := range values {
		for _, name := range strings.Split(v, ",") {
			if strings.TrimSpace(name) == "" {
				continue
			}
			s, err := models.ParseSelector(name)
			if err != nil {
				return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}
			changed = append(changed, s)
		}
	}
	return changed, nil
}

// viewError maps a derived-view failure onto an HTTP error.
func viewError(err error) error {
	if engine.IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
}

// --- HANDLERS ---

// GetChart serves one panel as a standalone document.
func (h *Handler) GetChart(c echo.Context) error {
	panel, err := dashboard.ParsePanel(c.Param("panel"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	state, err := h.getSelectors(c)
	if err != nil {
		return err
	}
	var doc *render.Document
	if f := c.QueryParam("format"); f != "" {
		format, err := render.ParseFormat(f)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		doc, err = h.dash.RenderFormat(panel, state, format)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	} else if doc, err = h.dash.Render(panel, state); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set("ETag", doc.ETag)
	if match := c.Request().Header.Get("If-None-Match"); match != "" && match == doc.ETag {
		return c.NoContent(http.StatusNotModified)
	}
	return c.HTMLBlob(http.StatusOK, doc.Body)
}

func srcdocs(docs map[dashboard.Panel]*render.Document) map[string]string {
	out := make(map[string]string, len(docs))
	for p, d := range docs {
		out[string(p)] = d.String()
	}
	return out
}

// GetUpdate is the selector callback: it returns a srcdoc for every panel
// that depends on one of the changed selectors.
func (h *Handler) GetUpdate(c echo.Context) error {
	changed, err := parseChanged(c.QueryParams()["changed"])
	if err != nil {
		return err
	}
	state, err := h.getSelectors(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, srcdocs(h.dash.Update(state, changed...)))
}

type updateRequest struct {
	Changed []string `json:"changed"`
	Year    *int     `json:"year"`
	Metric  string   `json:"metric"`
	Country *string  `json:"country"`
}

// PostUpdate is GetUpdate with the state in a JSON body.
func (h *Handler) PostUpdate(c echo.Context) error {
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	changed, err := parseChanged(req.Changed)
	if err != nil {
		return err
	}

	state := h.dash.Defaults()
	if req.Year != nil {
		state.Year = *req.Year
	}
	if req.Metric != "" {
		m, err := models.ParseMetric(req.Metric)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		state.Metric = m
	}
	if req.Country != nil {
		state.Country = *req.Country
	}
	return c.JSON(http.StatusOK, srcdocs(h.dash.Update(state, changed...)))
}

type metricOption struct {
	Value models.Metric `json:"value"`
	Label string        `json:"label"`
}

func metricOptions() []metricOption {
	out := make([]metricOption, len(models.Metrics))
	for i, m := range models.Metrics {
		out[i] = metricOption{Value: m, Label: m.Label()}
	}
	return out
}

func (h *Handler) GetSelectors(c echo.Context) error {
	store := h.dash.Store()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"years":     store.YearList(),
		"metrics":   metricOptions(),
		"countries": store.Countries(),
		"defaults":  h.dash.Defaults(),
	})
}

// GetRanking pages through the ranking the same way the chart orders it.
func (h *Handler) GetRanking(c echo.Context) error {
	state, err := h.getSelectors(c)
	if err != nil {
		return err
	}
	view, err := h.dash.Store().Ranking(state.Year, state.Metric)
	if err != nil {
		return viewError(err)
	}

	rows := view.Rows
	total := len(rows)
	limit, offset := getPaginationParams(c, total)

	if offset >= total {
		rows = []models.RankingRow{}
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		rows = rows[offset:end]
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"year":   view.Year,
		"metric": view.Metric,
		"data":   rows,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (h *Handler) GetTrend(c echo.Context) error {
	state, err := h.getSelectors(c)
	if err != nil {
		return err
	}
	view, err := h.dash.Store().Trend(state.Year, state.Metric)
	if err != nil {
		return viewError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetMap(c echo.Context) error {
	state, err := h.getSelectors(c)
	if err != nil {
		return err
	}
	bound, err := h.dash.Builder().Bound(state.Metric)
	if err != nil {
		return viewError(err)
	}
	view, err := h.dash.Store().Map(state.Year, state.Metric, bound)
	if err != nil {
		return viewError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetCountry(c echo.Context) error {
	state, err := h.getSelectors(c)
	if err != nil {
		return err
	}
	view, err := h.dash.Store().CountryDetail(state.Country)
	if err != nil {
		return viewError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetOverview(c echo.Context) error {
	state, err := h.getSelectors(c)
	if err != nil {
		return err
	}
	view, err := h.dash.Store().Overview(state.Metric)
	if err != nil {
		return viewError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) GetHealth(c echo.Context) error {
	store := h.dash.Store()
	if store == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store not loaded")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"rows":        store.Len(),
		"joined":      store.JoinedRows(),
		"countries":   len(store.Countries()),
		"fingerprint": strconv.FormatUint(store.Fingerprint(), 16),
	})
}
