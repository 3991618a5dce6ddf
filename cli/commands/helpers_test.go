package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/himakhaitan/wscache/engine"
	"github.com/himakhaitan/wscache/pkg/config"
	"github.com/himakhaitan/wscache/server"
	"github.com/himakhaitan/wscache/store"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// executeCommand runs the cobra command with given arguments.
// Only cobra errors (arg count) are checked; runtime failures go through output.Error.
func executeCommand(t *testing.T, cmd *cobra.Command, args []string) {
	cmd.SetArgs(args)
	err := cmd.Execute()
	assert.NoError(t, err)
}

func captureOutput(f func()) string {
	var buf bytes.Buffer
	stdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = stdout
	buf.ReadFrom(r)
	return buf.String()
}

// startCacheServer runs a real session manager on an httptest server and
// points CACHE_URL at it
func startCacheServer(t *testing.T, capacity int) *store.Store {
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	cfg.Capacity = capacity

	s, err := store.New(logger, cfg)
	require.NoError(t, err)

	manager := server.NewManager(engine.NewRouter(s, logger), cfg, logger)
	ts := httptest.NewServer(manager)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Close(ctx)
		ts.Close()
	})

	t.Setenv(EnvURL, "ws"+strings.TrimPrefix(ts.URL, "http"))
	return s
}
