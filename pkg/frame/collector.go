package frame

import (
	"github.com/cbodonnell/tickstream/pkg/bitstream"
	"github.com/cbodonnell/tickstream/pkg/scope"
)

// Collector captures the full state of every registered scope.
type Collector struct {
	registry *scope.Registry
}

// NewCollector creates a collector over registry.
func NewCollector(registry *scope.Registry) *Collector {
	return &Collector{registry: registry}
}

// Collect walks the registry once and returns a full frame. Entries without
// a StateCollector are skipped.
func (c *Collector) Collect() *Frame {
	b := NewBuilder()
	payload := bitstream.NewWriter()
	c.registry.Each(func(s *scope.Scope) {
		payload.Reset()
		for _, binding := range s.Bindings {
			if binding.Collector == nil {
				continue
			}
			binding.Collector.CollectState(payload)
		}
		b.Add(s.ID, payload)
	})
	return b.Frame()
}
