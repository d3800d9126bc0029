// Package sync pushes rendered artifacts to the static web host that the
// office screens point at.
package sync

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/okklab/reportboard/internal/metrics"
)

// Syncer uploads local files to the remote host. Implementations must be
// safe to call from the single pipeline worker.
type Syncer interface {
	Upload(paths []string) error
}

// NoopSyncer is used when no remote host is configured. Artifacts stay on
// local disk and the web server is expected to serve them from there.
type NoopSyncer struct{}

func (NoopSyncer) Upload([]string) error { return nil }

// SFTPSyncer uploads artifacts over SFTP. A fresh connection is dialed per
// upload batch; uploads are rare enough that holding a session open between
// pipeline runs is not worth the reconnect handling.
type SFTPSyncer struct {
	addr      string
	user      string
	pass      string
	remoteDir string
	logger    zerolog.Logger
}

// NewSFTPSyncer creates a new SFTPSyncer.
func NewSFTPSyncer(addr, user, pass, remoteDir string, logger zerolog.Logger) *SFTPSyncer {
	return &SFTPSyncer{addr: addr, user: user, pass: pass, remoteDir: remoteDir, logger: logger}
}

// Upload copies every path to the remote directory, keeping base names.
func (s *SFTPSyncer) Upload(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	client, closeAll, err := s.dial()
	if err != nil {
		metrics.SyncFailures.Inc()
		return err
	}
	defer closeAll()

	if err := client.MkdirAll(s.remoteDir); err != nil {
		metrics.SyncFailures.Inc()
		return fmt.Errorf("mkdir remote %s: %w", s.remoteDir, err)
	}

	for _, local := range paths {
		if err := s.uploadOne(client, local); err != nil {
			metrics.SyncFailures.Inc()
			return err
		}
	}
	s.logger.Info().Int("files", len(paths)).Str("remote", s.remoteDir).Msg("artifacts uploaded")
	return nil
}

func (s *SFTPSyncer) dial() (*sftp.Client, func(), error) {
	cfg := &ssh.ClientConfig{
		User: s.user,
		Auth: []ssh.AuthMethod{ssh.Password(s.pass)},
		// The web host lives on the office LAN and has no stable host key
		// management. TODO: pin the host key once the box gets a fixed image.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	conn, err := ssh.Dial("tcp", s.addr, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("ssh dial %s: %w", s.addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("sftp session: %w", err)
	}
	return client, func() {
		client.Close()
		conn.Close()
	}, nil
}

func (s *SFTPSyncer) uploadOne(client *sftp.Client, local string) error {
	src, err := os.Open(local)
	if err != nil {
		return fmt.Errorf("open %s: %w", local, err)
	}
	defer src.Close()

	remote := path.Join(s.remoteDir, filepath.Base(local))
	dst, err := client.Create(remote)
	if err != nil {
		return fmt.Errorf("create remote %s: %w", remote, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("upload %s: %w", remote, err)
	}
	s.logger.Debug().Str("local", local).Str("remote", remote).Msg("file uploaded")
	return nil
}
