// Package chi mounts webhook endpoints on a chi router. Webhook routes are
// public: they must not sit behind auth middleware, since Stripe calls them
// directly and authenticity comes from signature verification.
package chi

import (
	"github.com/go-chi/chi/v5"

	"github.com/clubworks/billingsync/pkg/webhook"
)

// Mount registers each endpoint as a POST route under basePath, keyed by
// endpoint name: basePath/{name}.
func Mount(r chi.Router, basePath string, endpoints ...webhook.Endpoint) {
	for _, e := range endpoints {
		r.Method("POST", join(basePath, e.Name()), e.Handler())
	}
}

func join(base, name string) string {
	if base == "" || base == "/" {
		return "/" + name
	}
	if base[len(base)-1] == '/' {
		return base + name
	}
	return base + "/" + name
}
