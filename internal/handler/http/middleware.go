package http

import (
	"net/http"
	"strings"

	"github.com/utafrali/recordsearch/internal/domain"
)

// Caller identity headers, resolved by the upstream gateway.
const (
	HeaderUserID          = "X-User-Id"
	HeaderOrganizationID  = "X-Organization-Id"
	HeaderSolutionID      = "X-Solution-Id"
	HeaderSolutionOwnerID = "X-Solution-Owner-Id"
)

// callerFromRequest builds the security principal from the identity headers.
// Missing headers are left empty; the compiler hardens anonymous callers.
func callerFromRequest(r *http.Request) domain.Caller {
	return domain.Caller{
		UserID:          r.Header.Get(HeaderUserID),
		OrganizationID:  r.Header.Get(HeaderOrganizationID),
		SolutionID:      r.Header.Get(HeaderSolutionID),
		SolutionOwnerID: r.Header.Get(HeaderSolutionOwnerID),
	}
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// CORS adds permissive Cross-Origin Resource Sharing headers for development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Correlation-ID, X-User-Id, X-Organization-Id, X-Solution-Id, X-Solution-Owner-Id")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
