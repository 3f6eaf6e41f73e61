package middleware

import (
	"context"
	"net/http"

	"github.com/soaringjerry/evibench/internal/utils"
)

type ctxKey int

const localeKey ctxKey = 1

// SupportedLocales are the languages with a message table.
var SupportedLocales = []string{"en", "zh"}

// LocaleMiddleware extracts locale from query param (lang) or Accept-Language
// and stores it in request context.
func LocaleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale := utils.DetermineLocale(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"), SupportedLocales, "en")
		ctx := context.WithValue(r.Context(), localeKey, locale)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LocaleFromContext retrieves the locale stored by LocaleMiddleware.
func LocaleFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(localeKey).(string); ok {
		return s
	}
	return "en"
}

// Translate renders key in the request's locale.
func Translate(ctx context.Context, key string) string {
	return utils.T(LocaleFromContext(ctx), key)
}
