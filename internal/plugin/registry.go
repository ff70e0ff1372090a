package plugin

import (
	"errors"
	"strings"
)

var ErrPluginNotFound = errors.New("plugin_not_found")

// Registry holds the registered payment plugins by name.
type Registry struct {
	plugins map[string]PaymentPluginApi
}

func NewRegistry(plugins ...PaymentPluginApi) *Registry {
	registry := &Registry{plugins: map[string]PaymentPluginApi{}}
	for _, p := range plugins {
		if p == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			continue
		}
		registry.plugins[name] = p
	}
	return registry
}

func (r *Registry) Exists(name string) bool {
	if r == nil {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	_, ok := r.plugins[name]
	return ok
}

func (r *Registry) Get(name string) (PaymentPluginApi, error) {
	if r == nil {
		return nil, ErrPluginNotFound
	}
	name = strings.ToLower(strings.TrimSpace(name))
	p, ok := r.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return p, nil
}
