// Package config implements the kernel's pluggable configuration loader:
// a Provider wraps a target struct and a chain of Feeders (file formats,
// environment variables) applied in order, so later feeders override
// earlier ones. Its merge algebra is deliberately simple — the spec treats
// the configuration loader as an external collaborator, described only
// insofar as the kernel consumes a config.
package config

import (
	"fmt"
)

// Feeder populates structure (a pointer to a struct) from one
// configuration source.
type Feeder interface {
	Feed(structure any) error
}

// Provider exposes the kernel's merged configuration.
type Provider interface {
	// Get returns the current configuration value (a pointer to the
	// target struct passed to NewProvider).
	Get() any
	// Reload re-applies every feeder in order, refreshing Get's value.
	Reload() error
}

// StdProvider is the default Provider: a target struct fed by an ordered
// chain of Feeders.
type StdProvider struct {
	target  any
	feeders []Feeder
}

// NewProvider returns a Provider that feeds target (a pointer to a
// struct) from feeders, in order.
func NewProvider(target any, feeders ...Feeder) *StdProvider {
	return &StdProvider{target: target, feeders: feeders}
}

// Get returns the provider's target struct pointer.
func (p *StdProvider) Get() any { return p.target }

// Reload applies every feeder to target in order.
func (p *StdProvider) Reload() error {
	for i, f := range p.feeders {
		if err := f.Feed(p.target); err != nil {
			return fmt.Errorf("config: feeder %d of %d: %w", i+1, len(p.feeders), err)
		}
	}
	return nil
}
