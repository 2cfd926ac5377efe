package socket

import (
	"net"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"netlab/errors"
)

func TestSettings_Defaults(t *testing.T) {
	req := require.New(t)
	settings := NewSettings()

	cfg := settings.Get()
	req.Nil(cfg.Timeout)
	req.Equal(DefaultBufferSize, cfg.RecvBuffer)
	req.Equal(DefaultBufferSize, cfg.SendBuffer)
	req.True(cfg.Blocking)
}

func TestSettings_Update_MergesOverPrevious(t *testing.T) {
	req := require.New(t)
	settings := NewSettings()

	// When only the receive buffer is patched
	updated, err := settings.Update(Patch{RecvBuffer: lo.ToPtr(4096)})
	req.NoError(err)

	// Then the other fields keep their previous values
	req.Equal(4096, updated.RecvBuffer)
	req.Equal(DefaultBufferSize, updated.SendBuffer)
	req.True(updated.Blocking)
	req.Equal(updated, settings.Get())

	// And a later patch merges over the first one
	updated, err = settings.Update(Patch{
		Timeout:  lo.ToPtr(3 * time.Second),
		Blocking: lo.ToPtr(false),
	})
	req.NoError(err)
	req.Equal(4096, updated.RecvBuffer)
	req.NotNil(updated.Timeout)
	req.Equal(3*time.Second, *updated.Timeout)
	req.False(updated.Blocking)
}

func TestSettings_Update_ZeroTimeoutClears(t *testing.T) {
	req := require.New(t)
	settings := NewSettings()

	_, err := settings.Update(Patch{Timeout: lo.ToPtr(2 * time.Second)})
	req.NoError(err)
	req.NotNil(settings.Get().Timeout)

	updated, err := settings.Update(Patch{Timeout: lo.ToPtr(time.Duration(0))})
	req.NoError(err)
	req.Nil(updated.Timeout)
}

func TestSettings_Update_InvalidKeepsPrevious(t *testing.T) {
	tests := []struct {
		name  string
		patch Patch
	}{
		{name: "negative timeout", patch: Patch{Timeout: lo.ToPtr(-time.Second)}},
		{name: "zero receive buffer", patch: Patch{RecvBuffer: lo.ToPtr(0)}},
		{name: "negative receive buffer", patch: Patch{RecvBuffer: lo.ToPtr(-1)}},
		{name: "zero send buffer", patch: Patch{SendBuffer: lo.ToPtr(0)}},
		{name: "negative send buffer", patch: Patch{SendBuffer: lo.ToPtr(-512)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			settings := NewSettings()
			before := settings.Get()

			_, err := settings.Update(tt.patch)

			req.ErrorIs(err, errors.ErrInvalidConfig)
			req.Equal(before, settings.Get())
		})
	}
}

func TestConfig_DeadlinePolicy(t *testing.T) {
	req := require.New(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// Blocking without timeout blocks forever
	blocking := Config{RecvBuffer: 1, SendBuffer: 1, Blocking: true}
	req.True(blocking.Deadline(now).IsZero())
	req.False(blocking.Retryable())

	// Blocking with timeout bounds the operation, no retry
	bounded := blocking
	bounded.Timeout = lo.ToPtr(5 * time.Second)
	req.Equal(now.Add(5*time.Second), bounded.Deadline(now))
	req.False(bounded.Retryable())

	// Non-blocking polls and retries
	polling := Config{RecvBuffer: 1, SendBuffer: 1, Blocking: false}
	req.Equal(now.Add(PollInterval), polling.Deadline(now))
	req.True(polling.Retryable())
}

func TestSettings_Apply_SetsBuffersOnTCPConn(t *testing.T) {
	req := require.New(t)
	settings := NewSettings()
	_, err := settings.Update(Patch{RecvBuffer: lo.ToPtr(8192), SendBuffer: lo.ToPtr(8192)})
	req.NoError(err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			_ = conn.Close()
		}
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	req.NoError(err)
	defer conn.Close()

	req.NoError(settings.Apply(conn))
}

func TestSettings_Apply_SkipsNonTCPConn(t *testing.T) {
	req := require.New(t)
	settings := NewSettings()

	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	req.NoError(settings.Apply(client))
}
