package live

import (
	"sort"
)

// MarkerState is what the map should show for one tracked entity: where the
// marker sits and what its label says.
type MarkerState struct {
	Position LatLng
	Heading  float64
	Label    string
}

// MarkerHandle is the rendering surface's opaque per-marker object. The
// arena is its only owner; nothing else may create or destroy one.
type MarkerHandle interface{}

// Surface is the map rendering target the arena drives.
type Surface interface {
	CreateMarker(id string, st MarkerState) MarkerHandle
	MoveMarker(h MarkerHandle, st MarkerState)
	RemoveMarker(h MarkerHandle)
}

// MarkerDiff lists the operations that turn the rendered set into the
// desired set. Ids are sorted for deterministic application.
type MarkerDiff struct {
	Create []string
	Update []string
	Remove []string
}

// DiffMarkers computes the minimal operation set between what should be on
// the map and what already is. An entity present in both sides is always an
// update, never a remove+create, so its handle (and any open popup tied to
// it) survives the move.
func DiffMarkers(desired map[string]MarkerState, rendered map[string]MarkerHandle) MarkerDiff {
	var d MarkerDiff
	for id := range rendered {
		if _, ok := desired[id]; !ok {
			d.Remove = append(d.Remove, id)
		}
	}
	for id := range desired {
		if _, ok := rendered[id]; ok {
			d.Update = append(d.Update, id)
		} else {
			d.Create = append(d.Create, id)
		}
	}
	sort.Strings(d.Create)
	sort.Strings(d.Update)
	sort.Strings(d.Remove)
	return d
}

// MarkerArena owns the rendered marker set for one map view. After every
// Reconcile the rendered id set equals the desired id set exactly.
type MarkerArena struct {
	surface  Surface
	rendered map[string]MarkerHandle
}

func NewMarkerArena(surface Surface) *MarkerArena {
	return &MarkerArena{
		surface:  surface,
		rendered: make(map[string]MarkerHandle),
	}
}

// Reconcile applies the diff between desired and the currently rendered set
// to the surface and returns the operations performed.
func (a *MarkerArena) Reconcile(desired map[string]MarkerState) MarkerDiff {
	d := DiffMarkers(desired, a.rendered)
	for _, id := range d.Remove {
		a.surface.RemoveMarker(a.rendered[id])
		delete(a.rendered, id)
	}
	for _, id := range d.Update {
		a.surface.MoveMarker(a.rendered[id], desired[id])
	}
	for _, id := range d.Create {
		a.rendered[id] = a.surface.CreateMarker(id, desired[id])
	}
	return d
}

// Clear removes every rendered marker, e.g. when a map view goes away.
func (a *MarkerArena) Clear() {
	for id, h := range a.rendered {
		a.surface.RemoveMarker(h)
		delete(a.rendered, id)
	}
}

// RenderedIDs returns the ids currently on the surface, sorted.
func (a *MarkerArena) RenderedIDs() []string {
	ids := make([]string, 0, len(a.rendered))
	for id := range a.rendered {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Handle exposes the surface object for one rendered entity, mainly so
// callers can attach popups to it. Ownership stays with the arena.
func (a *MarkerArena) Handle(id string) (MarkerHandle, bool) {
	h, ok := a.rendered[id]
	return h, ok
}

// Bounds is a rectangular region in WGS84 coordinates.
type Bounds struct {
	SouthWest LatLng `json:"south_west"`
	NorthEast LatLng `json:"north_east"`
}

// FitBounds computes the region covering every desired position. It is
// meant for an explicit "fit view" request only; recentering on every tick
// would fight the user's own panning. Returns false for an empty set.
func FitBounds(desired map[string]MarkerState) (Bounds, bool) {
	if len(desired) == 0 {
		return Bounds{}, false
	}
	first := true
	var b Bounds
	for _, st := range desired {
		p := st.Position
		if first {
			b = Bounds{SouthWest: p, NorthEast: p}
			first = false
			continue
		}
		if p.Latitude < b.SouthWest.Latitude {
			b.SouthWest.Latitude = p.Latitude
		}
		if p.Longitude < b.SouthWest.Longitude {
			b.SouthWest.Longitude = p.Longitude
		}
		if p.Latitude > b.NorthEast.Latitude {
			b.NorthEast.Latitude = p.Latitude
		}
		if p.Longitude > b.NorthEast.Longitude {
			b.NorthEast.Longitude = p.Longitude
		}
	}
	return b, true
}
