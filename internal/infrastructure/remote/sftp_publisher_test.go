package remote

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trackdrop/backend/internal/config"
	"github.com/trackdrop/backend/internal/infrastructure/logger"
	"github.com/trackdrop/backend/pkg/utils/crypto"
)

func TestNewSFTPPublisherDecryptsPassword(t *testing.T) {
	sealed, err := crypto.SealSecret("s3cret", "key")
	require.NoError(t, err)

	p, err := NewSFTPPublisher(config.RemoteConfig{
		Host:     "example.invalid",
		Port:     2222,
		User:     "music",
		Password: sealed,
		Dir:      "/srv/music",
	}, "key", logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "s3cret", p.client.config.Password)
	assert.Equal(t, "example.invalid:2222", p.client.Address())
}

func TestNewSFTPPublisherWrongKey(t *testing.T) {
	sealed, err := crypto.SealSecret("s3cret", "key")
	require.NoError(t, err)

	_, err = NewSFTPPublisher(config.RemoteConfig{Host: "h", User: "u", Password: sealed}, "other", logger.NewNop())
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}

func TestConnectWithoutCredentials(t *testing.T) {
	client := NewSSHClient(SSHConfig{Host: "127.0.0.1", User: "u"})
	_, err := client.ConnectWithRetry(context.Background())
	assert.ErrorIs(t, err, ErrSSHAuthentication)
}

func TestConnectGivesUpWhenCancelled(t *testing.T) {
	client := NewSSHClient(SSHConfig{
		Host:       "127.0.0.1",
		Port:       1,
		User:       "u",
		Password:   "p",
		Timeout:    200 * time.Millisecond,
		MaxRetries: 5,
		Backoff:    time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.ConnectWithRetry(ctx)
	assert.ErrorIs(t, err, ErrSSHConnection)
	assert.Less(t, time.Since(start), 5*time.Second)
}
