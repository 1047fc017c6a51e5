package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JonMunkholm/bulkimport/internal/importer"
)

type recordingServer struct {
	activeAtShutdown int
	limiter          *importer.Limiter
}

func (s *recordingServer) Shutdown(context.Context) error {
	s.activeAtShutdown = s.limiter.ActiveCount()
	return nil
}

func TestGracefulStop_ClosesServerBeforeDraining(t *testing.T) {
	limiter := importer.NewLimiter(2, time.Second)
	require.True(t, limiter.TryAcquire())

	srv := &recordingServer{limiter: limiter}
	released := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		limiter.Release()
		close(released)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	gracefulStop(ctx, srv, limiter, zaptest.NewLogger(t))

	assert.Equal(t, 1, srv.activeAtShutdown, "server stops while the import is still running")
	assert.Zero(t, limiter.ActiveCount(), "stop returns only after the import finished")
	<-released
}
