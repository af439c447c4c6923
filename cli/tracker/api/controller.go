package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Controller struct {
	Handler *Handler
	router  *gin.Engine
}

// NewController wires the routes. The metrics handler is optional.
func NewController(handler *Handler, metrics http.Handler) *Controller {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", handler.GetHealth)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	fleet := router.Group("/fleet")
	{
		fleet.GET("", handler.GetFleet)
		fleet.GET("/viewport", handler.GetViewport)
		fleet.GET("/:bus_id", handler.GetBus)
		fleet.POST("/:bus_id/refresh", handler.PostRefresh)
		if handler.History != nil {
			fleet.GET("/:bus_id/trips", handler.GetTripHistory)
		}
	}

	if handler.Routes != nil {
		routes := router.Group("/routes/:route_id")
		{
			routes.POST("/session", handler.PostEditSession)
			routes.DELETE("/session", handler.DeleteEditSession)
			routes.GET("/stops", handler.GetRouteStops)
			routes.POST("/stops", handler.PostRouteStop)
			routes.PATCH("/stops/:index", handler.PatchRouteStop)
			routes.DELETE("/stops/:index", handler.DeleteRouteStop)
			routes.POST("/save", handler.PostRouteSave)
		}
		router.GET("/geocode", handler.GetPlaces)
	}

	return &Controller{Handler: handler, router: router}
}

// Run blocks serving the API on the given address.
func (c *Controller) Run(addr string) error {
	return c.router.Run(addr)
}

// ServeHTTP lets tests drive the router directly.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.router.ServeHTTP(w, r)
}
