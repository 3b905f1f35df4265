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

// uwvmkd is the UserWorld object subsystem daemon: it wires a cartel
// registry, a host-filesystem-backed VMFS root and a proxy connection to
// the host resource proxy behind a control-plane unix socket that worlds
// attach to.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nexuskernel/userworld/wlog"
)

var configPath string
var verbose int

var banner = color.New(color.FgCyan, color.Bold)

func main() {
	root := &cobra.Command{
		Use:   "uwvmkd",
		Short: "UserWorld object subsystem daemon",
		Long:  "uwvmkd emulates the vmkernel UserWorld object subsystem: descriptors, VMFS-backed files, unix-domain sockets and pipes for every attached cartel.",
		RunE:  runServe,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a uwvmkd config file")
	root.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase log verbosity")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("uwvmkd: reading config: %w", err)
		}
	}
	v.AutomaticEnv()

	cfg, err := loadDaemonConfig(v)
	if err != nil {
		return fmt.Errorf("uwvmkd: loading config: %w", err)
	}

	level := cfg.LogLevel
	if verbose > 0 {
		level = "debug"
	}
	log := wlog.New(os.Stderr, level)
	wlog.SetDefault(log)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("uwvmkd: signal received, shutting down", wlog.Fields{})
		cancel()
	}()

	reg := newRegistry(cfg)

	ln, err := listenUnix(cfg.ListenSocket)
	if err != nil {
		return fmt.Errorf("uwvmkd: listening on %s: %w", cfg.ListenSocket, err)
	}

	_, _ = banner.Fprintf(os.Stderr, "uwvmkd listening on %s (root %s)\n", cfg.ListenSocket, cfg.RootPath)
	log.Info("uwvmkd: listening", wlog.Fields{"socket": cfg.ListenSocket, "root": cfg.RootPath})
	serveControl(ctx, ln, reg)

	return reg.Shutdown(context.Background())
}
