// Package metadata implements a minimal device/measurement schema tree
// with a per-leaf last-value cache, standing in for the coordinator's
// external metadata service collaborator. Grounded on the
// auto-create-and-lock schema lookup and cached-last-value update path
// consumed during ingestion.
package metadata

import "sync"

// LastValue is the most recently ingested value for a measurement,
// along with the timestamp it arrived at and whether it came from a
// high-priority (sequential) write.
type LastValue struct {
	Timestamp    int64
	Value        any
	HighPriority bool
}

type device struct {
	mu           sync.RWMutex
	measurements map[string]LastValue
}

// Service is a device→measurement schema/last-value tree. Devices and
// measurements are created lazily on first write (AutoCreate in the
// original).
type Service struct {
	mu      sync.RWMutex
	devices map[string]*device
}

func New() *Service {
	return &Service{devices: map[string]*device{}}
}

// deviceNode returns (creating if absent) the node for a device.
func (s *Service) deviceNode(name string) *device {
	s.mu.RLock()
	d, ok := s.devices[name]
	s.mu.RUnlock()
	if ok {
		return d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[name]; ok {
		return d
	}
	d = &device{measurements: map[string]LastValue{}}
	s.devices[name] = d
	return d
}

// UpdateLastCache records value as the latest cached value for
// device/measurement if it is newer than what is cached, or if it is a
// high-priority (sequential) write superseding a lower-priority one at
// the same timestamp.
func (s *Service) UpdateLastCache(deviceName, measurement string, ts int64, value any, highPriority bool) {
	d := s.deviceNode(deviceName)
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, ok := d.measurements[measurement]
	if !ok || ts > cur.Timestamp || (ts == cur.Timestamp && highPriority && !cur.HighPriority) {
		d.measurements[measurement] = LastValue{Timestamp: ts, Value: value, HighPriority: highPriority}
	}
}

func (s *Service) LastValue(deviceName, measurement string) (LastValue, bool) {
	d := s.deviceNode(deviceName)
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.measurements[measurement]
	return v, ok
}

// Measurements lists every measurement known for a device.
func (s *Service) Measurements(deviceName string) []string {
	d := s.deviceNode(deviceName)
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.measurements))
	for m := range d.measurements {
		out = append(out, m)
	}
	return out
}
