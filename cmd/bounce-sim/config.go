package main

import (
	"bytes"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"betrusted/firmware"
	"betrusted/hal/sim"
)

// BoardConfig is the YAML description of a simulated board.
type BoardConfig struct {
	// ClockHz is the system clock.
	ClockHz uint32 `yaml:"clock_hz"`

	// Width and Height are the panel size in pixels.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	Radius   int `yaml:"radius"`
	ArenaTop int `yaml:"arena_top"`

	// MillisPerTick is how far the clock moves on every read.
	MillisPerTick uint64 `yaml:"ms_per_tick"`

	// FailFlushAt makes the Nth frame transfer fail. Zero disables it.
	FailFlushAt int `yaml:"fail_flush_at,omitempty"`

	Heap HeapConfig `yaml:"heap"`
}

// HeapConfig places the heap in the simulated address space.
type HeapConfig struct {
	Start uint64 `yaml:"start"`
	Size  uint32 `yaml:"size"`
}

// DefaultBoardConfig mirrors the real board.
func DefaultBoardConfig() BoardConfig {
	opts := sim.DefaultOptions()
	fw := firmware.DefaultConfig()
	return BoardConfig{
		ClockHz:       fw.ClockHz,
		Width:         opts.Width,
		Height:        opts.Height,
		Radius:        fw.Radius,
		ArenaTop:      fw.ArenaTop,
		MillisPerTick: opts.MillisPerTick,
		Heap: HeapConfig{
			Start: uint64(opts.HeapStart),
			Size:  opts.HeapSize,
		},
	}
}

// LoadBoardConfig reads path over the defaults. Unknown keys are errors.
func LoadBoardConfig(path string) (BoardConfig, error) {
	cfg := DefaultBoardConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read board config")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, cfg.Validate()
}

type check struct {
	ok  bool
	msg string
}

// Validate reports every problem at once.
func (c BoardConfig) Validate() error {
	checks := []check{
		{c.ClockHz >= 1_000_000, "clock_hz must be at least 1MHz"},
		{c.Width > 0 && c.Height > 0, "width and height must be positive"},
		{c.Radius >= 0, "radius must not be negative"},
		{c.ArenaTop >= 0 && c.ArenaTop < c.Height, "arena_top must lie on the panel"},
		{c.FailFlushAt >= 0, "fail_flush_at must not be negative"},
		{c.Heap.Size > 0, "heap.size must be positive"},
		{c.Heap.Start%16 == 0, "heap.start must be 16-byte aligned"},
	}
	failed := lo.FilterMap(checks, func(c check, _ int) (string, bool) {
		return c.msg, !c.ok
	})
	if len(failed) > 0 {
		return errors.Errorf("invalid board config: %s", strings.Join(failed, "; "))
	}
	return nil
}

// SimOptions converts to the simulated board options.
func (c BoardConfig) SimOptions() sim.Options {
	opts := sim.DefaultOptions()
	opts.Width = c.Width
	opts.Height = c.Height
	opts.MillisPerTick = c.MillisPerTick
	opts.FailTransferAt = c.FailFlushAt
	opts.HeapStart = uintptr(c.Heap.Start)
	opts.HeapSize = c.Heap.Size
	return opts
}

// Firmware converts to the runtime configuration.
func (c BoardConfig) Firmware() firmware.Config {
	cfg := firmware.DefaultConfig()
	cfg.ClockHz = c.ClockHz
	cfg.Radius = c.Radius
	cfg.ArenaTop = c.ArenaTop
	return cfg
}
