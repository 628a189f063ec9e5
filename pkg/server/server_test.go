package server

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackmatch/hackmatch/pkg/database"
)

func testConfig() Config {
	return Config{
		Port:            0,
		Mode:            "release",
		JWTSecret:       []byte("test-secret"),
		TokenTTL:        time.Hour,
		DefaultPageSize: 50,
		MaxPageSize:     200,
		SendBufferSize:  32,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv := New(testConfig(), db, AllowAllResolver{}, nil)
	t.Cleanup(srv.CloseConnections)
	return srv
}

func mustToken(t *testing.T, srv *Server, userID string) string {
	t.Helper()
	token, err := srv.Auth().GenerateToken(userID)
	require.NoError(t, err)
	return token
}
