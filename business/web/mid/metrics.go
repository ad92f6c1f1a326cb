package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/powchain/business/sys/metrics"
	"github.com/ardanlabs/powchain/foundation/web"
)

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Handle updating the metrics that can be handled here.

			// Increment the request and goroutines counter.
			n := metrics.AddRequests()
			metrics.AddGoroutines(n)

			// Increment if there is an error flowing through the request.
			if err != nil {
				metrics.AddErrors()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
