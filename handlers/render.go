package handlers

import (
	"bytes"
	"errors"
	"html/template"
	"net/http"

	"secrets/auth"
	"secrets/db"
	"secrets/web"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
)

// renderTemplate executes name inside the shared layout. Output is buffered so
// a template failure still yields a clean 500.
func (h *Handler) renderTemplate(w http.ResponseWriter, r *http.Request, status int, name string, data map[string]any) {
	lang := h.i18n.DetectLanguage(r)

	funcMap := template.FuncMap{
		"T": func(key string) string {
			return h.i18n.T(lang, key)
		},
	}

	tmpl, err := template.New(name).Funcs(funcMap).ParseFS(web.Templates, "templates/layout.html", "templates/"+name)
	if err != nil {
		h.log.Error().Err(err).Str("template", name).Msg("failed to parse template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if data == nil {
		data = map[string]any{}
	}
	if _, exists := data["AppName"]; !exists {
		data["AppName"] = h.cfg.AppName
	}
	data["Lang"] = lang
	data["csrfField"] = csrf.TemplateField(r)
	if user, ok := auth.UserFromContext(r.Context()); ok {
		data["User"] = user
	}
	if _, exists := data["Flashes"]; !exists {
		data["Flashes"] = h.sessions.Flashes(w, r)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		h.log.Error().Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderError terminates the request with the error page. Pending flashes are
// left for the next regular page.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, messageKey string) {
	h.renderTemplate(w, r, status, "error.html", map[string]any{
		"Message": messageKey,
		"Flashes": nil,
	})
}

// serverError logs err and maps it to 503 when the store is unreachable,
// 500 otherwise.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	status, key := http.StatusInternalServerError, "ErrorInternal"
	if errors.Is(err, db.ErrStoreUnavailable) {
		status, key = http.StatusServiceUnavailable, "ErrorStoreUnavailable"
	}

	h.log.Error().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")

	h.renderError(w, r, status, key)
}
