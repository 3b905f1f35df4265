/*
 * MIT License
 *
 * Copyright (c) 2026 nexuskernel contributors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package wconfig

import (
	"time"

	"github.com/spf13/viper"
)

// Cartel holds the per-cartel tunables named by the spec. Defaults match the
// literal values in spec.md §6.
type Cartel struct {
	// DescriptorCap is the bounded size of the per-cartel fd table (spec: 320).
	DescriptorCap int `mapstructure:"descriptor_cap"`

	// FlushInterval is the VMFS periodic-flush period (spec: 60s).
	FlushInterval time.Duration `mapstructure:"flush_interval"`

	// PollDefaultTimeout is loaded and carried with the rest of the config;
	// no Poll path in this module reads it - Cartel.Poll always takes an
	// explicit timeout.
	PollDefaultTimeout time.Duration `mapstructure:"poll_default_timeout"`

	Backoff Backoff `mapstructure:"backoff"`
}

// Backoff is the proxy send-retry schedule (spec §4.5/§6: 1, 3, 5, ... ms
// capped at CapMS, giving up after GiveUp).
type Backoff struct {
	StartMS int           `mapstructure:"start_ms"`
	StepMS  int           `mapstructure:"step_ms"`
	CapMS   int           `mapstructure:"cap_ms"`
	GiveUp  time.Duration `mapstructure:"give_up"`
}

// Default returns the spec's literal defaults.
func Default() Cartel {
	return Cartel{
		DescriptorCap:      320,
		FlushInterval:      60 * time.Second,
		PollDefaultTimeout: 0,
		Backoff: Backoff{
			StartMS: 1,
			StepMS:  2,
			CapMS:   50,
			GiveUp:  90 * time.Second,
		},
	}
}

// Load reads a Cartel config from v, falling back to Default() for any key
// the caller's file/env/flags did not set - mirrors the teacher's
// config/component.go pattern of a registered defaulting unmarshal.
func Load(v *viper.Viper) (Cartel, error) {
	cfg := Default()

	v.SetDefault("descriptor_cap", cfg.DescriptorCap)
	v.SetDefault("flush_interval", cfg.FlushInterval)
	v.SetDefault("poll_default_timeout", cfg.PollDefaultTimeout)
	v.SetDefault("backoff.start_ms", cfg.Backoff.StartMS)
	v.SetDefault("backoff.step_ms", cfg.Backoff.StepMS)
	v.SetDefault("backoff.cap_ms", cfg.Backoff.CapMS)
	v.SetDefault("backoff.give_up", cfg.Backoff.GiveUp)

	if err := v.Unmarshal(&cfg); err != nil {
		return Cartel{}, err
	}
	return cfg, nil
}
