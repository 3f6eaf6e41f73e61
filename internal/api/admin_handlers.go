package api

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/evibench/internal/middleware"
	"github.com/soaringjerry/evibench/internal/services"
)

const maxDatasetBytes = 64 << 20

// requireAdmin checks X-Admin-Key against the configured bcrypt hash. With no
// hash configured the operator endpoints stay closed.
func (rt *Router) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if len(rt.adminHash) == 0 || key == "" || bcrypt.CompareHashAndPassword(rt.adminHash, []byte(key)) != nil {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":   string(services.ErrorForbidden),
				"message": middleware.Translate(r.Context(), "admin.forbidden"),
			})
			return
		}
		next(w, r)
	}
}

// POST /api/admin/dataset?mode=reseed|append&encoding=latin1|utf8
func (rt *Router) handleDatasetLoad(w http.ResponseWriter, r *http.Request) {
	mode, err := services.ParseLoadMode(r.URL.Query().Get("mode"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	latin1 := !strings.EqualFold(r.URL.Query().Get("encoding"), "utf8")
	recs, err := services.ParseQuestionsCSV(http.MaxBytesReader(w, r.Body, maxDatasetBytes), latin1)
	if err != nil {
		rt.log.Warn("dataset upload rejected", "error", err)
		rt.writeError(w, r, err)
		return
	}
	n, err := rt.loader.Load(r.Context(), mode, recs)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	d, err := rt.data.Refresh(r.Context(), rt.store, rt.timeout)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"mode":      string(mode),
		"loaded":    n,
		"questions": d.Len(),
		"approved":  len(d.Emails()),
	})
}

// GET /api/export?format=long|wide
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	res, err := rt.export.ExportCSV(r.Context(), r.URL.Query().Get("format"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}
