// Copyright (C) 2025 Flowmesh Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engineconfig holds the handful of engine-wide tunables that are
// implementation details rather than per-run options: the default node
// timeout applied when a WorkDef/SuspendDef leaves its own Timeout at zero,
// and the event bus's ring-buffer size. Per-run behavior (which nodes run,
// what data a root node receives) is configured through topology.Options
// and topology.ResumeOptions, not through this package.
package engineconfig

import (
	_ "embed"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// Config is the engine's tunable configuration.
type Config struct {
	DefaultNodeTimeout time.Duration
	EventBufferSize    int
}

// rawConfig mirrors Config with a YAML-friendly duration string, since
// yaml.v3 does not parse time.Duration natively.
type rawConfig struct {
	DefaultNodeTimeout string `yaml:"defaultNodeTimeout"`
	EventBufferSize    int    `yaml:"eventBufferSize"`
}

func (r rawConfig) toConfig() (Config, error) {
	var cfg Config
	if r.DefaultNodeTimeout != "" {
		d, err := time.ParseDuration(r.DefaultNodeTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("engineconfig: parsing defaultNodeTimeout: %w", err)
		}
		cfg.DefaultNodeTimeout = d
	}
	cfg.EventBufferSize = r.EventBufferSize
	return cfg, nil
}

// Default parses the embedded defaults.yaml.
func Default() (Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(defaultConfigYAML, &raw); err != nil {
		return Config{}, fmt.Errorf("engineconfig: parsing embedded defaults: %w", err)
	}
	return raw.toConfig()
}

// Load reads Default and applies any fields overlay sets, following the
// teacher's embedded-default-plus-YAML-overlay convention. Zero-value
// fields in overlay leave the default untouched.
func Load(overlay io.Reader) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return Config{}, err
	}
	if overlay == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(overlay)
	if err != nil {
		return Config{}, fmt.Errorf("engineconfig: reading overlay: %w", err)
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("engineconfig: parsing overlay: %w", err)
	}
	overlayCfg, err := raw.toConfig()
	if err != nil {
		return Config{}, err
	}

	if overlayCfg.DefaultNodeTimeout > 0 {
		cfg.DefaultNodeTimeout = overlayCfg.DefaultNodeTimeout
	}
	if overlayCfg.EventBufferSize > 0 {
		cfg.EventBufferSize = overlayCfg.EventBufferSize
	}
	return cfg, nil
}
