// Package echo mounts webhook endpoints on an Echo instance or group.
// Webhook routes are public: authenticity comes from signature verification,
// not auth middleware.
package echo

import (
	goecho "github.com/labstack/echo/v4"

	"github.com/clubworks/billingsync/pkg/webhook"
)

// Router is the subset of Echo's routing API the adapter needs, satisfied
// by both *echo.Echo and *echo.Group.
type Router interface {
	POST(path string, h goecho.HandlerFunc, m ...goecho.MiddlewareFunc) *goecho.Route
}

// Mount registers each endpoint as a POST route, keyed by endpoint name.
func Mount(r Router, endpoints ...webhook.Endpoint) {
	for _, e := range endpoints {
		r.POST("/"+e.Name(), goecho.WrapHandler(e.Handler()))
	}
}
