package service

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func readWorkspaceInput(workspace string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(workspace, "input.txt"))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(raw), "\n"), nil
}
