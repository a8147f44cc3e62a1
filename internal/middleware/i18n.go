package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"spritegen/internal/i18n"
)

type localeContextKey struct{}

// LocaleKey stores the negotiated message locale.
var LocaleKey = localeContextKey{}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// countryHeaders are set by CDNs and load balancers in front of the API.
var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

// I18N negotiates the locale used for user-facing messages. Order: ?lang=,
// X-Locale, Accept-Language, then the client's country, then defaultLocale.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	fallback := i18n.Normalize(defaultLocale)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, fallback, lookup)
			next.ServeHTTP(w, r.WithContext(WithLocale(r.Context(), locale)))
		})
	}
}

func detectLocale(r *http.Request, fallback string, lookup CountryLookup) string {
	if v := strings.TrimSpace(r.URL.Query().Get("lang")); v != "" {
		return i18n.Normalize(v)
	}
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		return i18n.Normalize(v)
	}
	if v := i18n.MatchAcceptLanguage(r.Header.Get("Accept-Language")); v != "" {
		return v
	}
	if country := ResolveCountry(r, lookup); country != "" {
		if country == "ID" {
			return i18n.Indonesian
		}
		return i18n.English
	}
	if fallback != "" {
		return fallback
	}
	return i18n.English
}

// WithLocale stores locale in ctx.
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, LocaleKey, locale)
}

// LocaleFromContext returns the negotiated locale, English when unset.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok && v != "" {
		return v
	}
	return i18n.English
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		if first := strings.TrimSpace(strings.Split(xf, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ResolveCountry returns an upper-case ISO country code from proxy headers,
// or from lookup on the client IP. Empty when neither knows.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range countryHeaders {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" {
			return strings.ToUpper(val)
		}
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(country))
}
