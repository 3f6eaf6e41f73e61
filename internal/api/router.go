package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/soaringjerry/evibench/internal/logger"
	"github.com/soaringjerry/evibench/internal/middleware"
	"github.com/soaringjerry/evibench/internal/services"
)

// Options tunes the router. Zero values fall back to sane defaults.
type Options struct {
	Variant       services.Variant
	StoreTimeout  time.Duration
	SessionSecret string
	SessionTTL    time.Duration
	AdminKeyHash  string
	Logger        *logger.Logger
}

type Router struct {
	store      Store
	data       *services.DatasetHolder
	login      *services.LoginService
	annotation *services.AnnotationService
	loader     *services.LoaderService
	export     *services.ExportService
	sessions   *SessionManager
	signer     *middleware.SessionSigner
	adminHash  []byte
	timeout    time.Duration
	log        *logger.Logger
}

func NewRouter(store Store, data *services.DatasetHolder, opts Options) *Router {
	if opts.Variant == "" {
		opts.Variant = services.VariantExtended
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if data == nil {
		data = services.NewDatasetHolder(nil)
	}
	return &Router{
		store:      store,
		data:       data,
		login:      services.NewLoginService(store, data, opts.StoreTimeout, opts.Logger),
		annotation: services.NewAnnotationService(store, data, opts.Variant, opts.StoreTimeout, opts.Logger),
		loader:     services.NewLoaderService(store, opts.StoreTimeout, opts.Logger),
		export:     services.NewExportService(store, opts.StoreTimeout),
		sessions:   NewSessionManager(),
		signer:     middleware.NewSessionSigner(opts.SessionSecret, opts.SessionTTL),
		adminHash:  []byte(opts.AdminKeyHash),
		timeout:    opts.StoreTimeout,
		log:        opts.Logger,
	}
}

func (rt *Router) Sessions() *SessionManager { return rt.sessions }

func (rt *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", rt.withSession(rt.handleLogin))
	mux.HandleFunc("POST /api/logout", rt.handleLogout)
	mux.HandleFunc("GET /api/annotation", rt.withSession(rt.handleAnnotation))
	mux.HandleFunc("POST /api/annotation/answer", rt.withSession(rt.handleAnswer))
	mux.HandleFunc("POST /api/annotation/references", rt.withSession(rt.handleReferences))
	mux.HandleFunc("POST /api/annotation/best-answers", rt.withSession(rt.handleBestAnswers))
	mux.HandleFunc("POST /api/annotation/back", rt.withSession(rt.handleBack))
	mux.HandleFunc("GET /api/export", rt.requireAdmin(rt.handleExport))
	mux.HandleFunc("POST /api/admin/dataset", rt.requireAdmin(rt.handleDatasetLoad))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *services.Session)

// withSession resolves the cookie to a locked session, creating one on the
// first request and re-issuing the cookie when it nears expiry.
func (rt *Router) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, renew, _ := rt.signer.Verify(r)
		sess, created, release := rt.sessions.Acquire(sid)
		defer release()
		if created || renew {
			if err := rt.signer.SetCookie(w, r, sess.ID); err != nil {
				rt.log.Error("sign session cookie", "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
				return
			}
		}
		h(w, r, sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v); err != nil {
		return services.NewInvalidError(services.MsgInvalidJSON)
	}
	return nil
}

type problemView struct {
	Field   string `json:"field"`
	Key     string `json:"key"`
	Message string `json:"message"`
}

// writeError maps service errors onto HTTP statuses with translated
// messages.
func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if ve, ok := services.AsValidationError(err); ok {
		problems := make([]problemView, 0, len(ve.Problems))
		for _, p := range ve.Problems {
			problems = append(problems, problemView{Field: p.Field, Key: p.Key, Message: middleware.Translate(ctx, p.Key)})
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "validation", "problems": problems})
		return
	}
	se, ok := services.AsServiceError(err)
	if !ok {
		rt.log.Error("unhandled error", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal"})
		return
	}
	body := map[string]any{"error": string(se.Code), "key": se.Message, "message": middleware.Translate(ctx, se.Message)}
	status := http.StatusBadRequest
	switch se.Code {
	case services.ErrorForbidden:
		status = http.StatusForbidden
	case services.ErrorUnauthorized:
		status = http.StatusUnauthorized
		body["redirect"] = "/login"
	case services.ErrorNotFound:
		status = http.StatusNotFound
	case services.ErrorConflict:
		status = http.StatusConflict
	case services.ErrorUnavailable:
		status = http.StatusServiceUnavailable
		body["retryable"] = true
	}
	writeJSON(w, status, body)
}
