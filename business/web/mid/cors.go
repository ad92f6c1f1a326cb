package mid

import (
	"context"
	"net/http"
	"slices"

	"github.com/ardanlabs/powchain/foundation/web"
)

// Cors sets the response headers needed for Cross-Origin Resource Sharing.
// A "*" in the origins allows every origin, otherwise the request origin is
// echoed back only when it is listed.
func Cors(origins ...string) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			switch origin := r.Header.Get("Origin"); {
			case slices.Contains(origins, "*"):
				w.Header().Set("Access-Control-Allow-Origin", "*")

			case origin != "" && slices.Contains(origins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Origin, Accept, Content-Type, Content-Length, Accept-Encoding")

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
