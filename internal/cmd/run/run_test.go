package run

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServe_ShutdownOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- serve(ctx, "127.0.0.1:0", http.NewServeMux())
	}()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after context cancellation")
	}
}

func TestServe_ListenFailure(t *testing.T) {
	err := serve(context.Background(), "127.0.0.1:-1", http.NewServeMux())
	assert.Error(t, err)
}
