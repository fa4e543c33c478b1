package protocols

import (
	"fmt"

	"github.com/mccartyp/govee-artnet-lan-bridge/internal/store"
)

// Registry is a map-backed dispatch table from a device's protocol tag to
// its Handler, satisfying store.ProtocolRegistry/store.Wrapper structurally.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry builds a Registry pre-seeded with the Govee handler; callers
// may Register additional dialects before wiring it into the Store.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Handler{}}
	r.Register(GoveeHandler{})
	return r
}

// Register adds or replaces the handler for its own Name().
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Resolve returns the Wrapper (the Handler itself) registered for protocol,
// satisfying store.ProtocolRegistry.
func (r *Registry) Resolve(protocol string) (store.Wrapper, bool) {
	h, ok := r.handlers[protocol]
	if !ok {
		return nil, false
	}
	return h, true
}

// HandlerFor returns the full Handler (port, transport included), used by
// Delivery to pick a transport and default port per device.
func (r *Registry) HandlerFor(protocol string) (Handler, error) {
	h, ok := r.handlers[protocol]
	if !ok {
		return nil, fmt.Errorf("protocols: no handler registered for %q", protocol)
	}
	return h, nil
}
