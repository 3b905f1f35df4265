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

package main

import (
	"github.com/spf13/viper"

	"github.com/nexuskernel/userworld/wconfig"
)

// daemonConfig is uwvmkd's full configuration: the process-wide listen/dial
// addresses plus the per-cartel tunables every spawned Cartel is built from.
type daemonConfig struct {
	// ListenSocket is the control-plane unix socket worlds attach to.
	ListenSocket string `mapstructure:"listen_socket"`

	// ProxySocket is the host resource proxy's unix socket; one connection
	// is dialed here per cartel.
	ProxySocket string `mapstructure:"proxy_socket"`

	// RootPath is the host directory standing in for the VMFS volume this
	// tree's cartels resolve paths against.
	RootPath string `mapstructure:"root_path"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `mapstructure:"log_level"`

	Cartel wconfig.Cartel `mapstructure:"cartel"`
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		ListenSocket: "/var/run/uwvmkd.sock",
		ProxySocket:  "/var/run/vmkproxy.sock",
		RootPath:     "/vmfs/volumes/userworld",
		LogLevel:     "info",
		Cartel:       wconfig.Default(),
	}
}

// loadDaemonConfig reads uwvmkd's configuration from v, seeding every key
// with defaultDaemonConfig's values first so a file that sets only a few
// keys still yields a complete config - same defaulting shape as
// wconfig.Load.
func loadDaemonConfig(v *viper.Viper) (daemonConfig, error) {
	cfg := defaultDaemonConfig()

	v.SetDefault("listen_socket", cfg.ListenSocket)
	v.SetDefault("proxy_socket", cfg.ProxySocket)
	v.SetDefault("root_path", cfg.RootPath)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("cartel.descriptor_cap", cfg.Cartel.DescriptorCap)
	v.SetDefault("cartel.flush_interval", cfg.Cartel.FlushInterval)
	v.SetDefault("cartel.poll_default_timeout", cfg.Cartel.PollDefaultTimeout)
	v.SetDefault("cartel.backoff.start_ms", cfg.Cartel.Backoff.StartMS)
	v.SetDefault("cartel.backoff.step_ms", cfg.Cartel.Backoff.StepMS)
	v.SetDefault("cartel.backoff.cap_ms", cfg.Cartel.Backoff.CapMS)
	v.SetDefault("cartel.backoff.give_up", cfg.Cartel.Backoff.GiveUp)

	if err := v.Unmarshal(&cfg); err != nil {
		return daemonConfig{}, err
	}
	return cfg, nil
}
