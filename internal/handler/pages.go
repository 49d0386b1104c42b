package handler

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/dashboard"
	apierrors "github.com/jimbojumbojetplane/Rate-plan-pricing-extractor-v2/internal/errors"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages holds the parsed HTML templates, one set per page.
type Pages struct {
	grid  *template.Template
	table *template.Template
	err   *template.Template
}

var templateFuncs = template.FuncMap{
	"truncate": dashboard.Truncate,
	"money": func(v float64) string {
		return fmt.Sprintf("$%.0f", v)
	},
	"join": strings.Join,
	"orDefault": func(s, def string) string {
		if strings.TrimSpace(s) == "" {
			return def
		}
		return s
	},
	"allBrands": func() []string {
		return dashboard.Brands
	},
	// css marks the fixed tier palette as trusted style values.
	"css": func(s string) template.CSS {
		return template.CSS(s)
	},
	"deref": func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	},
}

// NewPages parses the embedded templates. It panics on a malformed template.
func NewPages() *Pages {
	parse := func(page string) *template.Template {
		return template.Must(template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+page))
	}
	return &Pages{
		grid:  parse("grid.html"),
		table: parse("table.html"),
		err:   parse("error.html"),
	}
}

type pageData struct {
	Title  string
	Active string
	View   interface{}
}

type errorView struct {
	Code    apierrors.ErrorCode
	Message string
	Status  int
}

// GridPage handles GET /.
func (h *Handlers) GridPage(w http.ResponseWriter, r *http.Request) {
	gq, err := ParseGridQuery(r.URL.Query())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	active, err := h.source.Active(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	view, _, err := BuildGrid(active, gq)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	h.render(w, r, h.pages.grid, http.StatusOK, pageData{Title: "Plan comparison", Active: "grid", View: view})
}

// TablePage handles GET /table.
func (h *Handlers) TablePage(w http.ResponseWriter, r *http.Request) {
	active, err := h.source.Active(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	view := BuildTable(active, r.URL.Query())
	h.render(w, r, h.pages.table, http.StatusOK, pageData{Title: "Detailed plans", Active: "table", View: view})
}

// RefreshForm handles POST /refresh and redirects back to the referring page.
func (h *Handlers) RefreshForm(w http.ResponseWriter, r *http.Request) {
	cleared := h.refresh()
	h.logger.Info("cache refreshed from dashboard", zap.Int("cleared", cleared))
	http.Redirect(w, r, redirectTarget(r), http.StatusSeeOther)
}

// redirectTarget returns the referer path when it points back at this host.
func redirectTarget(r *http.Request) string {
	ref := r.Referer()
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != r.Host) {
		return "/"
	}
	target := u.Path
	// "//host" and "/\host" are read by browsers as another origin.
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	return target
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	ev := errorView{Code: apierrors.ErrorCodeInternalError, Message: "internal server error", Status: http.StatusInternalServerError}
	var pe *apierrors.PlanError
	if errors.As(err, &pe) {
		ev = errorView{Code: pe.Code, Message: pe.Message, Status: pe.HTTPStatus()}
	} else {
		h.logger.Error("page failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	h.render(w, r, h.pages.err, ev.Status, pageData{Title: "Dashboard unavailable", View: ev})
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, t *template.Template, status int, data pageData) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		h.logger.Error("template render failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
