package metrics

import (
	"sort"
	"sync"
	"time"
)

// Registry is a small in-memory metrics store exposed on the admin surface.
// Counters accumulate, gauges hold the latest value.
type Registry struct {
	mu        sync.RWMutex
	counters  map[string]int64
	gauges    map[string]float64
	startTime time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:  make(map[string]int64),
		gauges:    make(map[string]float64),
		startTime: time.Now(),
	}
}

func (r *Registry) Increment(name string) {
	r.Add(name, 1)
}

func (r *Registry) Add(name string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
}

func (r *Registry) SetGauge(name string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gauges[name] = value
}

func (r *Registry) Counter(name string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// Snapshot returns a stable copy for serialization.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Counters      map[string]int64   `json:"counters"`
	Gauges        map[string]float64 `json:"gauges"`
	Names         []string           `json:"-"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(r.startTime).Seconds(),
		Counters:      make(map[string]int64, len(r.counters)),
		Gauges:        make(map[string]float64, len(r.gauges)),
	}
	for name, v := range r.counters {
		snap.Counters[name] = v
		snap.Names = append(snap.Names, name)
	}
	for name, v := range r.gauges {
		snap.Gauges[name] = v
	}
	sort.Strings(snap.Names)
	return snap
}
