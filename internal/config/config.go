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

// Package config defines the mount's configuration surface and binds it to
// command-line flags via viper/pflag, the same separation the teacher's
// cfg package uses between a plain struct and its flag bindings.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully resolved configuration for one mount.
type Config struct {
	Remote  RemoteConfig  `yaml:"remote"`
	Mount   MountConfig   `yaml:"mount"`
	Logging LoggingConfig `yaml:"logging"`
}

// RemoteConfig describes how to reach and authenticate against the remote
// host exporting the filesystem.
type RemoteConfig struct {
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	User           string        `yaml:"user"`
	IdentityFile   string        `yaml:"identity-file" mapstructure:"identity-file"`
	KnownHostsFile string        `yaml:"known-hosts-file" mapstructure:"known-hosts-file"`
	Path           string        `yaml:"path"`
	DialTimeout    time.Duration `yaml:"dial-timeout" mapstructure:"dial-timeout"`
	KeepAlive      time.Duration `yaml:"keep-alive" mapstructure:"keep-alive"`
}

// MountConfig carries the kernel-visible mount options, matching the
// conventional FUSE option names (fsname, ro, exec, atime, ...).
type MountConfig struct {
	Mountpoint string `yaml:"mountpoint"`
	FsName     string `yaml:"fsname"`
	ReadOnly   bool   `yaml:"ro" mapstructure:"ro"`
	NoExec     bool   `yaml:"noexec"`
	NoAtime    bool   `yaml:"noatime"`
	Sync       bool   `yaml:"sync"`
	DirSync    bool   `yaml:"dirsync"`
	NoDev      bool   `yaml:"nodev"`
	AllowOther bool   `yaml:"allow-other" mapstructure:"allow-other"`
	Foreground bool   `yaml:"foreground"`
}

// LoggingConfig controls internal/logger's output.
type LoggingConfig struct {
	Severity string `yaml:"severity"`
	Format   string `yaml:"format"`
	LogFile  string `yaml:"log-file" mapstructure:"log-file"`
}

// BindFlags registers every flag this command accepts and binds each one
// to the matching viper key, following the teacher's one-flag-one-bind-
// one-error-check convention in cfg.BindFlags.
func BindFlags(flagSet *pflag.FlagSet) error {
	bind := func(key, flag string) error {
		return viper.BindPFlag(key, flagSet.Lookup(flag))
	}

	flagSet.StringP("host", "H", "", "Remote host to mount from.")
	if err := bind("remote.host", "host"); err != nil {
		return err
	}

	flagSet.StringP("port", "P", "22", "Remote SSH port.")
	if err := bind("remote.port", "port"); err != nil {
		return err
	}

	flagSet.StringP("user", "u", "", "Remote login user.")
	if err := bind("remote.user", "user"); err != nil {
		return err
	}

	flagSet.String("identity-file", "", "Path to a private key used for public-key authentication.")
	if err := bind("remote.identity-file", "identity-file"); err != nil {
		return err
	}

	flagSet.String("known-hosts-file", "", "known_hosts file used to verify the remote host key. Empty accepts any host key.")
	if err := bind("remote.known-hosts-file", "known-hosts-file"); err != nil {
		return err
	}

	flagSet.String("remote-path", "/", "Remote directory to export as the mount root.")
	if err := bind("remote.path", "remote-path"); err != nil {
		return err
	}

	flagSet.Duration("dial-timeout", 30*time.Second, "Timeout for the initial SSH connection.")
	if err := bind("remote.dial-timeout", "dial-timeout"); err != nil {
		return err
	}

	flagSet.Duration("keep-alive", 30*time.Second, "Interval between SSH keepalive requests. 0 disables keepalives.")
	if err := bind("remote.keep-alive", "keep-alive"); err != nil {
		return err
	}

	flagSet.String("fsname", "", "Value reported to the kernel as the mount's fsname. Defaults to user@host:path.")
	if err := bind("mount.fsname", "fsname"); err != nil {
		return err
	}

	flagSet.Bool("ro", false, "Mount read-only.")
	if err := bind("mount.ro", "ro"); err != nil {
		return err
	}

	flagSet.Bool("noexec", false, "Disallow execution of files on the mount.")
	if err := bind("mount.noexec", "noexec"); err != nil {
		return err
	}

	flagSet.Bool("noatime", false, "Do not update access times on the mount.")
	if err := bind("mount.noatime", "noatime"); err != nil {
		return err
	}

	flagSet.Bool("sync", false, "Perform file writes synchronously.")
	if err := bind("mount.sync", "sync"); err != nil {
		return err
	}

	flagSet.Bool("dirsync", false, "Perform directory updates synchronously.")
	if err := bind("mount.dirsync", "dirsync"); err != nil {
		return err
	}

	flagSet.Bool("nodev", false, "Disallow device files on the mount.")
	if err := bind("mount.nodev", "nodev"); err != nil {
		return err
	}

	flagSet.Bool("allow-other", false, "Allow users other than the one running the mount to access it.")
	if err := bind("mount.allow-other", "allow-other"); err != nil {
		return err
	}

	flagSet.Bool("foreground", false, "Run in the foreground instead of daemonizing.")
	if err := bind("mount.foreground", "foreground"); err != nil {
		return err
	}

	flagSet.String("log-severity", "INFO", "Minimum severity logged: TRACE, DEBUG, INFO, WARNING, ERROR.")
	if err := bind("logging.severity", "log-severity"); err != nil {
		return err
	}

	flagSet.String("log-format", "text", "Log output format: text or json.")
	if err := bind("logging.format", "log-format"); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to write logs to. Empty logs to stderr.")
	if err := bind("logging.log-file", "log-file"); err != nil {
		return err
	}

	return nil
}

// Rationalize fills in values that depend on other fields, the way the
// teacher's cfg.Rationalize derives Logging.Severity from the debug flags.
func Rationalize(c *Config, mountpoint string) error {
	c.Mount.Mountpoint = mountpoint

	if c.Remote.User == "" {
		return fmt.Errorf("config: remote.user is required")
	}
	if c.Remote.Host == "" {
		return fmt.Errorf("config: remote.host is required")
	}

	if c.Mount.FsName == "" {
		c.Mount.FsName = fmt.Sprintf("%s@%s:%s", c.Remote.User, c.Remote.Host, c.Remote.Path)
	}

	if c.Mount.DirSync {
		c.Mount.Sync = true
	}

	return nil
}
