// SPDX-FileCopyrightText: 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package status exposes the statistics of running pipelines, both over HTTP
// and as periodic log lines.
package status

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Provider returns a JSON-serializable snapshot of a component's statistics.
type Provider func() interface{}

// Registry maps component names to their Providers.
type Registry struct {
	mutex     sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register a Provider by its component name. An existing entry is replaced.
func (r *Registry) Register(name string, p Provider) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.providers[name] = p
}

// Names of all registered components in ascending order.
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get the current snapshot of one component.
func (r *Registry) Get(name string) (stats interface{}, ok bool) {
	r.mutex.RLock()
	p, ok := r.providers[name]
	r.mutex.RUnlock()

	if ok {
		stats = p()
	}
	return
}

// Snapshot of all registered components.
func (r *Registry) Snapshot() map[string]interface{} {
	snapshot := make(map[string]interface{})
	for _, name := range r.Names() {
		if stats, ok := r.Get(name); ok {
			snapshot[name] = stats
		}
	}
	return snapshot
}

// LogStats writes one log line per registered component.
func (r *Registry) LogStats() {
	for name, stats := range r.Snapshot() {
		log.WithFields(log.Fields{
			"component": name,
			"stats":     stats,
		}).Info("Pipeline statistics")
	}
}
