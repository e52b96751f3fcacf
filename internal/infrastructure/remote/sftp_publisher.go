package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/pkg/utils/crypto"
)

// SFTPPublisher copies finished downloads to a directory on a remote host.
type SFTPPublisher struct {
	client    *SSHClient
	remoteDir string
	logger    *logger.Logger
}

// NewSFTPPublisher resolves an "enc:" password with encryptionKey.
func NewSFTPPublisher(cfg config.RemoteConfig, encryptionKey string, log *logger.Logger) (*SFTPPublisher, error) {
	password, err := crypto.ResolveSecret(cfg.Password, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt remote password: %w", err)
	}

	privateKey := cfg.PrivateKey
	if privateKey != "" && !looksLikePEM(privateKey) {
		data, err := os.ReadFile(privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		privateKey = string(data)
	}

	return &SFTPPublisher{
		client: NewSSHClient(SSHConfig{
			Host:       cfg.Host,
			Port:       cfg.Port,
			User:       cfg.User,
			Password:   password,
			PrivateKey: privateKey,
			Timeout:    cfg.Timeout,
		}),
		remoteDir: cfg.Dir,
		logger:    log,
	}, nil
}

// Publish uploads every path and returns how many made it. Each file is written
// under a temporary name and renamed into place once complete.
func (p *SFTPPublisher) Publish(ctx context.Context, localPaths []string) (int, error) {
	conn, err := p.client.ConnectWithRetry(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	// Closing the connection aborts a transfer in flight once ctx is done.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		return 0, fmt.Errorf("failed to create sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(p.remoteDir); err != nil {
		return 0, fmt.Errorf("failed to create remote dir %s: %w", p.remoteDir, err)
	}

	uploaded := 0
	for _, localPath := range localPaths {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		written, err := p.upload(sftpClient, localPath)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return uploaded, fmt.Errorf("%w: %v", ctxErr, err)
			}
			return uploaded, err
		}
		uploaded++
		p.logger.Infow("sftp_upload_ok",
			"host", p.client.Address(),
			"file", filepath.Base(localPath),
			"bytes", written,
		)
	}
	return uploaded, nil
}

func (p *SFTPPublisher) upload(client *sftp.Client, localPath string) (int64, error) {
	localFile, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open local file: %w", err)
	}
	defer localFile.Close()

	info, err := localFile.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat local file: %w", err)
	}

	target := path.Join(p.remoteDir, filepath.Base(localPath))
	tempPath := target + ".part"

	remoteFile, err := client.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file: %w", err)
	}

	written, err := io.Copy(remoteFile, localFile)
	closeErr := remoteFile.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", filepath.Base(localPath), err)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("failed to finish upload of %s: %w", filepath.Base(localPath), closeErr)
	}
	if written != info.Size() {
		return written, fmt.Errorf("upload incomplete: expected %d bytes, got %d", info.Size(), written)
	}

	if err := client.PosixRename(tempPath, target); err != nil {
		return written, fmt.Errorf("failed to move %s into place: %w", filepath.Base(localPath), err)
	}
	return written, nil
}

// private_key holds either PEM text or a path to a key file.
func looksLikePEM(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "-----BEGIN")
}
