package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/busfleet/livetrack/cli/tracker/routes"
	"github.com/gin-gonic/gin"
)

func routeParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("route_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid route id"})
		return 0, false
	}
	return id, true
}

func indexParam(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stop index"})
		return 0, false
	}
	return i, true
}

func editError(c *gin.Context, err error) {
	if errors.Is(err, routes.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// PostEditSession opens (or reopens) an editing session over a route's
// persisted stops.
func (h *Handler) PostEditSession(c *gin.Context) {
	routeID, ok := routeParam(c)
	if !ok {
		return
	}

	stops, err := h.Routes.Open(c.Request.Context(), routeID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stops": stops})
}

// DeleteEditSession discards a session without saving.
func (h *Handler) DeleteEditSession(c *gin.Context) {
	routeID, ok := routeParam(c)
	if !ok {
		return
	}
	h.Routes.Discard(routeID)
	c.JSON(http.StatusNoContent, nil)
}

func (h *Handler) GetRouteStops(c *gin.Context) {
	routeID, ok := routeParam(c)
	if !ok {
		return
	}

	stops, err := h.Routes.Stops(routeID)
	if err != nil {
		editError(c, err)
		return
	}

	path, _ := h.Routes.Path(routeID)
	c.JSON(http.StatusOK, gin.H{"stops": stops, "path": path})
}

type addStopRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
}

func (h *Handler) PostRouteStop(c *gin.Context) {
	routeID, ok := routeParam(c)
	if !ok {
		return
	}

	var req addStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stop, err := h.Routes.AddStop(c.Request.Context(), routeID, req.Latitude, req.Longitude, req.Name, req.Address)
	if err != nil {
		editError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stop)
}

type patchStopRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Name      *string  `json:"name"`
}

// PatchRouteStop moves and/or renames one stop, addressed by list index.
func (h *Handler) PatchRouteStop(c *gin.Context) {
	routeID, ok := routeParam(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}

	var req patchStopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Latitude != nil && req.Longitude != nil {
		if err := h.Routes.MoveStop(routeID, index, *req.Latitude, *req.Longitude); err != nil {
			editError(c, err)
			return
		}
	}
	if req.Name != nil {
		if err := h.Routes.RenameStop(routeID, index, *req.Name); err != nil {
			editError(c, err)
			return
		}
	}

	stops, err := h.Routes.Stops(routeID)
	if err != nil {
		editError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stops": stops})
}

func (h *Handler) DeleteRouteStop(c *gin.Context) {
	routeID, ok := routeParam(c)
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}

	if err := h.Routes.DeleteStop(routeID, index); err != nil {
		editError(c, err)
		return
	}

	stops, err := h.Routes.Stops(routeID)
	if err != nil {
		editError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stops": stops})
}

// PostRouteSave persists the session's stop list through the roster
// backend. The session survives a failed save so the caller can retry.
func (h *Handler) PostRouteSave(c *gin.Context) {
	routeID, ok := routeParam(c)
	if !ok {
		return
	}

	if err := h.Routes.Save(c.Request.Context(), routeID); err != nil {
		if errors.Is(err, routes.ErrNoSession) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}

// GetPlaces resolves a free-text query through the geocoding collaborator.
func (h *Handler) GetPlaces(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	places, err := h.Routes.SearchPlaces(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"places": places})
}

// GetTripHistory lists a bus's past trips through the roster backend.
func (h *Handler) GetTripHistory(c *gin.Context) {
	busID := c.Param("bus_id")
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}

	trips, herr := h.History.TripHistory(c.Request.Context(), busID, page)
	if herr != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": herr.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trips": trips})
}
