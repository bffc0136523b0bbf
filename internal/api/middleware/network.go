package middleware

import (
	"net/http"
	"strings"

	pkgmw "github.com/megabot/resolution-core/pkg/middleware"
)

// NetworkExtractor extracts the network scope from the request.
// It checks the X-Network-Id header, then the networkId query parameter,
// and falls back to "default".
func NetworkExtractor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		networkID := ""

		if h := r.Header.Get("X-Network-Id"); h != "" {
			networkID = strings.TrimSpace(h)
		}

		if networkID == "" {
			if q := r.URL.Query().Get("networkId"); q != "" {
				networkID = strings.TrimSpace(q)
			}
		}

		if networkID == "" {
			networkID = "default"
		}

		next.ServeHTTP(w, r.WithContext(pkgmw.SetNetworkID(r.Context(), networkID)))
	})
}
