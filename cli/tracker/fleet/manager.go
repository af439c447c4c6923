package fleet

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/busfleet/livetrack/cli/tracker/metrics"
	"github.com/busfleet/livetrack/cli/tracker/storage"
	"github.com/busfleet/livetrack/libs/live"
	log "github.com/sirupsen/logrus"
)

// Sink receives every applied snapshot; storage.AsyncRepository satisfies
// it. A nil sink disables fan-out.
type Sink interface {
	Save(storage.Snapshot) error
}

// BusSnapshot is the fan-out envelope: one bus's applied state plus when
// the daemon received it.
type BusSnapshot struct {
	BusID      string           `json:"bus_id"`
	ReceivedAt time.Time        `json:"received_at"`
	Status     *live.LiveStatus `json:"status"`
}

func (s *BusSnapshot) Key() string { return s.BusID }

func (s *BusSnapshot) ToBytes() ([]byte, error) {
	return json.Marshal(s)
}

func (s *BusSnapshot) Active() bool {
	return s.Status != nil && s.Status.HasActiveTrip
}

// BusView is one bus's state as exposed to the HTTP API.
type BusView struct {
	BusID     string           `json:"bus_id"`
	Connected bool             `json:"connected"`
	Status    *live.LiveStatus `json:"status"`
}

// tracker owns one bus's channel and snapshot. The snapshot is written
// only from the channel's delivery goroutine, so messages for one bus are
// applied strictly in arrival order; different buses proceed concurrently.
type tracker struct {
	busID   string
	channel *live.Channel

	mu        sync.Mutex
	current   *live.LiveStatus
	connected bool
}

func (t *tracker) snapshot() *live.LiveStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Manager keeps one tracker per followed bus and drives the optional map
// surface after every change.
type Manager struct {
	channelCfg live.ChannelConfig
	sink       Sink
	collector  *metrics.Collector

	mu       sync.Mutex
	trackers map[string]*tracker

	markerMu sync.Mutex
	arena    *live.MarkerArena
}

func NewManager(channelCfg live.ChannelConfig, sink Sink, collector *metrics.Collector) *Manager {
	return &Manager{
		channelCfg: channelCfg,
		sink:       sink,
		collector:  collector,
		trackers:   make(map[string]*tracker),
	}
}

// AttachSurface gives the manager a map surface to reconcile markers
// against. The arena stays the sole owner of the rendered set.
func (m *Manager) AttachSurface(surface live.Surface) {
	m.markerMu.Lock()
	m.arena = live.NewMarkerArena(surface)
	m.markerMu.Unlock()
	m.reconcileMarkers()
}

// Track opens a channel for one bus. Tracking an already-tracked bus is a
// no-op.
func (m *Manager) Track(busID string) {
	m.mu.Lock()
	if _, exists := m.trackers[busID]; exists {
		m.mu.Unlock()
		return
	}
	t := &tracker{busID: busID}
	t.channel = live.NewChannel(m.channelCfg, busID,
		func(msg live.Message) { m.onMessage(t, msg) },
		func(connected bool) { m.onStatus(t, connected) },
	)
	m.trackers[busID] = t
	count := len(m.trackers)
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.TrackedBuses.Set(float64(count))
	}
	log.WithField("bus", busID).Info("Tracking bus")
	t.channel.Connect()
}

// Untrack closes a bus's channel intentionally and removes its marker.
func (m *Manager) Untrack(busID string) {
	m.mu.Lock()
	t, exists := m.trackers[busID]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.trackers, busID)
	count := len(m.trackers)
	m.mu.Unlock()

	t.channel.Close()
	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()
	if m.collector != nil {
		m.collector.TrackedBuses.Set(float64(count))
		if wasConnected {
			m.collector.OpenChannels.Dec()
		}
	}
	log.WithField("bus", busID).Info("Stopped tracking bus")
	m.reconcileMarkers()
}

// Close stops tracking everything.
func (m *Manager) Close() {
	for _, busID := range m.trackedIDs() {
		m.Untrack(busID)
	}
}

func (m *Manager) onMessage(t *tracker, msg live.Message) {
	prev := t.snapshot()

	start := time.Now()
	next := live.Apply(prev, msg)
	if m.collector != nil {
		m.collector.ApplyDuration.Observe(time.Since(start).Seconds())
	}

	if next == prev {
		if m.collector != nil {
			m.collector.MessagesDropped.Inc()
		}
		return
	}

	t.mu.Lock()
	t.current = next
	t.mu.Unlock()

	if m.collector != nil {
		m.collector.MessagesApplied.WithLabelValues(string(msg.Kind)).Inc()
	}

	if m.sink != nil {
		snap := &BusSnapshot{BusID: t.busID, ReceivedAt: time.Now().UTC(), Status: next}
		if err := m.sink.Save(snap); err != nil {
			log.WithFields(log.Fields{"bus": t.busID, "err": err}).Error("Snapshot fan-out failed")
			if m.collector != nil {
				m.collector.SnapshotStoreErrs.Inc()
			}
		} else if m.collector != nil {
			m.collector.SnapshotsStored.Inc()
		}
	}

	m.reconcileMarkers()
}

func (m *Manager) onStatus(t *tracker, connected bool) {
	t.mu.Lock()
	changed := t.connected != connected
	t.connected = connected
	t.mu.Unlock()
	if !changed || m.collector == nil {
		return
	}
	if connected {
		m.collector.OpenChannels.Inc()
	} else {
		m.collector.OpenChannels.Dec()
		m.collector.Reconnects.Inc()
	}
}

// Snapshot returns the current state of one tracked bus.
func (m *Manager) Snapshot(busID string) (*live.LiveStatus, bool) {
	m.mu.Lock()
	t, exists := m.trackers[busID]
	m.mu.Unlock()
	if !exists {
		return nil, false
	}
	return t.snapshot(), true
}

// Connected reports whether a bus's channel is currently up.
func (m *Manager) Connected(busID string) bool {
	m.mu.Lock()
	t, exists := m.trackers[busID]
	m.mu.Unlock()
	if !exists {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Fleet returns a view of every tracked bus, sorted by id.
func (m *Manager) Fleet() []BusView {
	m.mu.Lock()
	trackers := make([]*tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		trackers = append(trackers, t)
	}
	m.mu.Unlock()

	views := make([]BusView, 0, len(trackers))
	for _, t := range trackers {
		t.mu.Lock()
		views = append(views, BusView{BusID: t.busID, Connected: t.connected, Status: t.current})
		t.mu.Unlock()
	}
	sort.Slice(views, func(i, j int) bool { return views[i].BusID < views[j].BusID })
	return views
}

// Refresh asks one bus's channel for a full resync.
func (m *Manager) Refresh(busID string) bool {
	m.mu.Lock()
	t, exists := m.trackers[busID]
	m.mu.Unlock()
	if !exists {
		return false
	}
	t.channel.Refresh()
	return true
}

// RefreshAll requests a full resync on every open channel, e.g. from the
// cron schedule.
func (m *Manager) RefreshAll() {
	for _, busID := range m.trackedIDs() {
		m.Refresh(busID)
	}
}

// DesiredMarkers derives the marker set from the fleet state: one marker
// per bus with an active trip and a known position. A bus without a
// position simply has no marker yet.
func (m *Manager) DesiredMarkers() map[string]live.MarkerState {
	desired := make(map[string]live.MarkerState)
	for _, view := range m.Fleet() {
		st := view.Status
		if st == nil || !st.HasActiveTrip || st.Location == nil {
			continue
		}
		label := view.BusID
		if st.Trip != nil && st.Trip.RouteName != "" {
			label = st.Trip.RouteName
		}
		desired[view.BusID] = live.MarkerState{
			Position: live.LatLng{Latitude: st.Location.Latitude, Longitude: st.Location.Longitude},
			Heading:  st.Location.Heading,
			Label:    label,
		}
	}
	return desired
}

// FitBounds computes the region covering every rendered bus, for an
// explicit fit-view request.
func (m *Manager) FitBounds() (live.Bounds, bool) {
	return live.FitBounds(m.DesiredMarkers())
}

func (m *Manager) reconcileMarkers() {
	m.markerMu.Lock()
	defer m.markerMu.Unlock()
	if m.arena == nil {
		return
	}
	m.arena.Reconcile(m.DesiredMarkers())
}

func (m *Manager) trackedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.trackers))
	for id := range m.trackers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
