// Package gin mounts webhook endpoints on a Gin engine or route group.
// Webhook routes are public: authenticity comes from signature verification,
// not auth middleware.
package gin

import (
	gongin "github.com/gin-gonic/gin"

	"github.com/clubworks/billingsync/pkg/webhook"
)

// Mount registers each endpoint as a POST route on the given router group,
// keyed by endpoint name.
func Mount(r gongin.IRouter, endpoints ...webhook.Endpoint) {
	for _, e := range endpoints {
		r.POST("/"+e.Name(), gongin.WrapH(e.Handler()))
	}
}
