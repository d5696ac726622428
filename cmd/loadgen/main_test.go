package main

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Once(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	require.NoError(t, run([]string{"--target", srv.URL, "--once", "--log-level", "error"}))
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
}

func TestRun_OnceUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := run([]string{"--target", url, "--once", "--timeout", "1s", "--log-level", "error"})
	require.Error(t, err)
}

func TestRun_BadFlag(t *testing.T) {
	assert.Error(t, run([]string{"--concurrency", "many"}))
}

func TestSetupLogger(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, setupLogger("debug").GetLevel())
	assert.Equal(t, logrus.InfoLevel, setupLogger("bogus").GetLevel())
}
