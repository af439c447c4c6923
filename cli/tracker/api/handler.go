package api

import (
	"context"
	"net/http"

	"github.com/busfleet/livetrack/cli/tracker/fleet"
	"github.com/busfleet/livetrack/cli/tracker/routes"
	"github.com/busfleet/livetrack/libs/live"
	"github.com/gin-gonic/gin"
)

// FleetView is what the handlers need from the fleet manager.
type FleetView interface {
	Fleet() []fleet.BusView
	Snapshot(busID string) (*live.LiveStatus, bool)
	Connected(busID string) bool
	Refresh(busID string) bool
	FitBounds() (live.Bounds, bool)
}

// TripHistorian lists a bus's past trips; rest.Client satisfies it.
type TripHistorian interface {
	TripHistory(ctx context.Context, busID string, page int) ([]live.Trip, error)
}

// Handler serves the fleet state plus, when the collaborators are
// configured, trip history and route editing. History and Routes may be
// nil; the controller then leaves their endpoints unregistered.
type Handler struct {
	Fleet   FleetView
	History TripHistorian
	Routes  *routes.Service
}

func NewHandler(fleet FleetView, history TripHistorian, editors *routes.Service) *Handler {
	return &Handler{Fleet: fleet, History: history, Routes: editors}
}

func (h *Handler) GetFleet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"buses": h.Fleet.Fleet()})
}

func (h *Handler) GetBus(c *gin.Context) {
	busID := c.Param("bus_id")

	status, ok := h.Fleet.Snapshot(busID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "bus is not tracked"})
		return
	}

	c.JSON(http.StatusOK, fleet.BusView{
		BusID:     busID,
		Connected: h.Fleet.Connected(busID),
		Status:    status,
	})
}

func (h *Handler) PostRefresh(c *gin.Context) {
	busID := c.Param("bus_id")

	if !h.Fleet.Refresh(busID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "bus is not tracked"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "refresh requested"})
}

func (h *Handler) GetViewport(c *gin.Context) {
	bounds, ok := h.Fleet.FitBounds()
	if !ok {
		c.JSON(http.StatusNoContent, nil)
		return
	}

	c.JSON(http.StatusOK, bounds)
}

func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
