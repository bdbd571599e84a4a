// Copyright 2026 The sshmount Authors
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

// A FUSE bridge that exposes a directory on a remote host, reached over
// SFTP, as a local filesystem.
//
// Usage:
//
//	sshmount [flags] mount_point
package cmd

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mitoneko/sshmount/internal/config"
)

var (
	cfgFile       string
	bindErr       error
	configFileErr error
	unmarshalErr  error
	MountConfig   config.Config
)

var rootCmd = &cobra.Command{
	Use:   "sshmount [flags] mount_point",
	Short: "Mount a remote directory over SFTP as a local FUSE filesystem",
	Long: `sshmount connects to a remote host over SSH, opens an SFTP session
against it, and exposes a directory on that host as a local FUSE mount.
File operations performed against the mount point are translated to SFTP
requests against the single shared session.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if configFileErr != nil {
			return configFileErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}

		mountPoint, err := populateArgs(args)
		if err != nil {
			return err
		}

		if err := config.Rationalize(&MountConfig, mountPoint); err != nil {
			return err
		}

		return mountAndServe(&MountConfig)
	},
}

func populateArgs(args []string) (mountPoint string, err error) {
	if len(args) != 1 {
		return "", fmt.Errorf(
			"%s takes exactly one argument, the mount point. Run `%s --help` for more info.",
			path.Base(os.Args[0]), path.Base(os.Args[0]))
	}

	mountPoint, err = resolvePath(args[0])
	if err != nil {
		return "", fmt.Errorf("canonicalizing mount point: %w", err)
	}
	return mountPoint, nil
}

// resolvePath makes p absolute without requiring it to exist yet, the way
// a mount point's parent directory must but the mount point itself need
// not until the kernel bind happens.
func resolvePath(p string) (string, error) {
	if path.IsAbs(p) {
		return path.Clean(p), nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return path.Join(wd, p), nil
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	bindErr = config.BindFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&MountConfig)
		return
	}

	resolved, err := resolvePath(cfgFile)
	if err != nil {
		configFileErr = fmt.Errorf("error while resolving config file path: %w", err)
		return
	}
	viper.SetConfigFile(resolved)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		configFileErr = fmt.Errorf("error while reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&MountConfig)
}
