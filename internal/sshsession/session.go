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

// Package sshsession dials the remote host, builds the SFTP client used
// for the lifetime of a mount, and canonicalizes the export root.
package sshsession

import (
	"fmt"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/pkg/sftp"
)

// Options configures the SSH dial and SFTP handshake.
type Options struct {
	Host string
	Port string
	User string

	// Auth methods to try, in order. Construct with ssh.Password,
	// ssh.PublicKeys, or an ssh-agent signer.
	Auth []ssh.AuthMethod

	// KnownHostsFile, if non-empty, is used to verify the server's host
	// key. If empty, the connection accepts any host key (InsecureIgnoreHostKey);
	// this is only appropriate for trusted/test networks.
	KnownHostsFile string

	DialTimeout time.Duration

	// KeepAlive, if positive, sends a keepalive global request on the
	// transport at this interval so that idle mounts do not get dropped by
	// intermediate NAT or firewalls.
	KeepAlive time.Duration
}

// Session is an established SSH connection and its SFTP subsystem channel.
// It is created once before the bridge is constructed and lives for the
// mount's lifetime; the bridge never attempts to reconnect.
type Session struct {
	sshClient  *ssh.Client
	SFTP       *sftp.Client
	stopKeepAlive chan struct{}
}

// Dial connects to opts.Host:opts.Port, authenticates, and opens an SFTP
// subsystem channel over the resulting connection.
func Dial(opts Options) (*Session, error) {
	hostKeyCallback, err := hostKeyCallback(opts.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("sshsession: loading known_hosts: %w", err)
	}

	cfg := &ssh.ClientConfig{
		User:            opts.User,
		Auth:            opts.Auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.DialTimeout,
		ClientVersion:   "SSH-2.0-sshmount",
	}

	addr := net.JoinHostPort(opts.Host, opts.Port)
	conn, err := net.DialTimeout("tcp", addr, opts.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("sshsession: dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sshsession: handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("sshsession: opening sftp subsystem: %w", err)
	}

	s := &Session{
		sshClient: client,
		SFTP:      sftpClient,
	}
	if opts.KeepAlive > 0 {
		s.stopKeepAlive = make(chan struct{})
		go s.keepAliveLoop(opts.KeepAlive)
	}
	return s, nil
}

func (s *Session) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sshClient.Conn.SendRequest("keepalive@sshmount", true, nil)
		case <-s.stopKeepAlive:
			return
		}
	}
}

// Close tears down the SFTP channel and the underlying SSH connection.
func (s *Session) Close() error {
	if s.stopKeepAlive != nil {
		close(s.stopKeepAlive)
	}
	sftpErr := s.SFTP.Close()
	sshErr := s.sshClient.Close()
	if sftpErr != nil {
		return sftpErr
	}
	return sshErr
}

// CanonicalRoot resolves root (which may be relative to the login user's
// home directory, or contain a leading "~") to an absolute remote path,
// following at most one level of symlink on the final component.
func CanonicalRoot(client *sftp.Client, root string) (string, error) {
	expanded := root
	if !path.IsAbs(root) {
		home, err := client.Getwd()
		if err != nil {
			return "", fmt.Errorf("sshsession: resolving home directory: %w", err)
		}
		if root == "~" || strings.HasPrefix(root, "~/") {
			root = strings.TrimPrefix(root, "~")
		}
		expanded = path.Join(home, root)
	}

	info, err := client.Lstat(expanded)
	if err != nil {
		return "", fmt.Errorf("sshsession: stat root %q: %w", expanded, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := client.ReadLink(expanded)
		if err != nil {
			return "", fmt.Errorf("sshsession: resolving root symlink %q: %w", expanded, err)
		}
		if !path.IsAbs(target) {
			target = path.Join(path.Dir(expanded), target)
		}
		expanded = target
	}

	return path.Clean(expanded), nil
}

func hostKeyCallback(knownHostsFile string) (ssh.HostKeyCallback, error) {
	if knownHostsFile == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(knownHostsFile)
}
