// Package config fills tagged structs from the process environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Option adjusts how Load reads the environment.
type Option func(*env.Options)

// WithPrefix prepends prefix to every key, e.g. "IDENTITY_".
func WithPrefix(prefix string) Option {
	return func(o *env.Options) { o.Prefix = prefix }
}

// WithEnvironment reads from vars instead of the process environment.
func WithEnvironment(vars map[string]string) Option {
	return func(o *env.Options) { o.Environment = vars }
}

// WithRequiredIfNoDefault makes every field without envDefault mandatory.
func WithRequiredIfNoDefault() Option {
	return func(o *env.Options) { o.RequiredIfNoDef = true }
}

// Load parses `env`/`envDefault` tags on cfg, which must be a struct pointer.
// Every failing field is reported in one error.
func Load(cfg any, opts ...Option) error {
	var o env.Options
	for _, opt := range opts {
		opt(&o)
	}
	if err := env.ParseWithOptions(cfg, o); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Keys lists the environment keys cfg reads, in field order.
func Keys(cfg any, opts ...Option) ([]string, error) {
	var o env.Options
	for _, opt := range opts {
		opt(&o)
	}
	params, err := env.GetFieldParamsWithOptions(cfg, o)
	if err != nil {
		return nil, fmt.Errorf("inspect config: %w", err)
	}
	keys := make([]string, 0, len(params))
	for _, p := range params {
		keys = append(keys, p.Key)
	}
	return keys, nil
}
