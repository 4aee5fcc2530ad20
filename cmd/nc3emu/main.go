// Copyright 2026 The nissan-connect-emu Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nissan-connect-emu/emu/pkg/emulator"
)

func main() {
	var (
		mountConfigPath string
		trace           bool
	)

	log := logrus.New()

	root := &cobra.Command{
		Use:   "nc3emu --mount-config FILE EXE [ARGS...]",
		Short: "ARM user-mode emulator for automotive head-unit firmware",
		Long: `nc3emu loads a 32-bit ARM ELF binary and runs it under a Unicorn-backed
CPU emulator, servicing its Linux syscalls against a configurable host-
backed filesystem instead of a real kernel.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if trace {
				log.SetLevel(logrus.TraceLevel)
			}

			var cfg emulator.MountConfig
			if mountConfigPath != "" {
				loaded, err := emulator.LoadMountConfig(mountConfigPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			execPath := args[0]
			argv := args
			envp := os.Environ()

			status, err := emulator.Run(cfg, execPath, argv, envp, log)
			if err != nil {
				return err
			}
			os.Exit(status)
			return nil
		},
	}

	root.Flags().StringVar(&mountConfigPath, "mount-config", "", "TOML file describing the guest mount table (see MountConfig)")
	root.Flags().BoolVar(&trace, "trace", false, "enable per-instruction/per-syscall trace logging")

	if err := root.Execute(); err != nil {
		log.WithError(err).Error("nc3emu: fatal")
		os.Exit(1)
	}
}
