package core

import (
	"github.com/aretw0/introspection"
)

// ServiceState exposes internal state for observability.
type ServiceState struct {
	Context         string `json:"context"`
	Available       bool   `json:"available"`
	EventBufferSize int    `json:"event_buffer_size"`
	StoreType       string `json:"store_type"`
	Versioned       bool   `json:"versioned"`
}

// State implements introspection.Introspectable.
func (s *Service) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	storeType := "unknown"
	if s.store != nil {
		storeType = "store"
		if comp, ok := s.store.(introspection.Component); ok {
			storeType = comp.ComponentType()
		}
	}
	_, versioned := s.store.(Versioned)

	return ServiceState{
		Context:         s.name,
		Available:       s.available,
		EventBufferSize: s.eventBufferSize,
		StoreType:       storeType,
		Versioned:       versioned,
	}
}

// ComponentType implements introspection.Component.
func (s *Service) ComponentType() string {
	return "service"
}

var _ introspection.Introspectable = (*Service)(nil)
var _ introspection.Component = (*Service)(nil)
