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

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/jacobsa/daemonize"

	"github.com/mitoneko/sshmount/clock"
	"github.com/mitoneko/sshmount/internal/bridge"
	"github.com/mitoneko/sshmount/internal/config"
	"github.com/mitoneko/sshmount/internal/logger"
	"github.com/mitoneko/sshmount/internal/sshsession"
)

// mountAndServe dials the remote host, canonicalizes the export root,
// mounts the bridge at cfg.Mount.Mountpoint, and blocks until the
// filesystem is unmounted (by the kernel, a SIGINT/SIGTERM, or an
// unrecoverable error). Unless --foreground was given, it instead
// re-execs itself in the background via daemonize.Run and blocks until
// that child signals whether the mount actually succeeded.
func mountAndServe(cfg *config.Config) error {
	if !cfg.Mount.Foreground {
		return daemonizeSelf(cfg.Mount.Mountpoint)
	}

	server, session, err := doMount(cfg)
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		logger.Errorf("Failed to signal mount outcome to parent process: %v", sigErr)
	}
	if err != nil {
		return err
	}
	defer session.Close()

	logger.Infof("File system has been successfully mounted.")
	server.Serve()
	return nil
}

// daemonizeSelf re-execs the current binary with --foreground forced on
// and the mount point canonicalized, the way legacy_main.go re-invokes
// gcsfuse itself before calling daemonize.Run. It blocks until the child
// has mounted (or failed to).
func daemonizeSelf(mountPoint string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemonizing: %w", err)
	}

	args := append([]string{"--foreground"}, os.Args[1:]...)
	args[len(args)-1] = mountPoint

	env := []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))}
	if home, err := os.UserHomeDir(); err == nil {
		env = append(env, fmt.Sprintf("HOME=%s", home))
	}

	if err := daemonize.Run(exe, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	fmt.Fprintln(os.Stdout, "File system has been successfully mounted.")
	return nil
}

// doMount performs the actual dial/canonicalize/mount sequence, used by
// both a foreground run and the daemonized child. The returned session
// must be closed by the caller once server.Serve() returns.
func doMount(cfg *config.Config) (*fuse.Server, *sshsession.Session, error) {
	if err := logger.InitFile(cfg.Logging.LogFile, cfg.Logging.Format, cfg.Logging.Severity); err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}

	auths, err := buildAuthMethods(cfg.Remote.IdentityFile)
	if err != nil {
		return nil, nil, err
	}

	logger.Infof("Dialing %s@%s:%s...", cfg.Remote.User, cfg.Remote.Host, cfg.Remote.Port)
	session, err := sshsession.Dial(sshsession.Options{
		Host:           cfg.Remote.Host,
		Port:           cfg.Remote.Port,
		User:           cfg.Remote.User,
		Auth:           auths,
		KnownHostsFile: cfg.Remote.KnownHostsFile,
		DialTimeout:    cfg.Remote.DialTimeout,
		KeepAlive:      cfg.Remote.KeepAlive,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to remote host: %w", err)
	}

	root, err := sshsession.CanonicalRoot(session.SFTP, cfg.Remote.Path)
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("resolving remote path %q: %w", cfg.Remote.Path, err)
	}
	logger.Infof("Exporting %q as %q", root, cfg.Mount.Mountpoint)

	fsBridge := bridge.New(bridge.WrapClient(session.SFTP), root, clock.RealClock{}, logger.Default())

	server, err := fuse.NewServer(fsBridge, cfg.Mount.Mountpoint, mountOptions(cfg))
	if err != nil {
		session.Close()
		return nil, nil, fmt.Errorf("mounting at %q: %w", cfg.Mount.Mountpoint, err)
	}

	registerSignalHandler(server, cfg.Mount.Mountpoint)
	return server, session, nil
}

// mountOptions translates the resolved mount configuration into the
// fusermount "-o" option strings the kernel understands.
func mountOptions(cfg *config.Config) *fuse.MountOptions {
	var opts []string
	if cfg.Mount.ReadOnly {
		opts = append(opts, "ro")
	}
	if cfg.Mount.NoExec {
		opts = append(opts, "noexec")
	}
	if cfg.Mount.NoAtime {
		opts = append(opts, "noatime")
	}
	if cfg.Mount.Sync {
		opts = append(opts, "sync")
	}
	if cfg.Mount.DirSync {
		opts = append(opts, "dirsync")
	}
	if cfg.Mount.NoDev {
		opts = append(opts, "nodev")
	}

	return &fuse.MountOptions{
		AllowOther: cfg.Mount.AllowOther,
		Options:    opts,
		FsName:     cfg.Mount.FsName,
		Name:       "sshmount",
	}
}

// registerSignalHandler unmounts mountPoint when the process receives
// SIGINT or SIGTERM, so that an interrupted foreground run (or a service
// manager's stop signal) leaves no stale mount behind.
func registerSignalHandler(server *fuse.Server, mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalChan
		logger.Infof("Received signal, attempting to unmount %q...", mountPoint)
		if err := server.Unmount(); err != nil {
			logger.Errorf("Failed to unmount in response to signal: %v", err)
			return
		}
		logger.Infof("Successfully unmounted %q.", mountPoint)
	}()
}
