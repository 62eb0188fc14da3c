package middleware

import (
	"net/http"
	"strings"

	"github.com/appmeta/appmeta/internal/api/models"
	"github.com/appmeta/appmeta/internal/appstore"
	"github.com/appmeta/appmeta/internal/appstore/apptweak"
)

// MsgAPIKeyRequired is returned when a request has no upstream API key.
const MsgAPIKeyRequired = "API key is required"

// APIKey reads the caller's upstream key from the x-apptweak-key header and
// stores it in the request context. Requests without a key are rejected with
// 401 unless allowServerKey is set, in which case the upstream client falls
// back to its configured key.
func APIKey(allowServerKey bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(apptweak.APIKeyHeader))
			if key == "" {
				if !allowServerKey {
					models.NewUnauthorized(GetRequestID(r.Context()), MsgAPIKeyRequired).
						WithInstance(r.URL.Path).
						Write(w)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(appstore.ContextWithAPIKey(r.Context(), key)))
		})
	}
}
