package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunStatusAgainstFakeIntrospectionServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/debug/pools", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(poolHealthView{
			Timestamp: time.Now(),
			Pools: []poolSummaryView{
				{ProcessIndex: 0, Label: "main", ExternalAddress: "127.0.0.1:10002", Status: "running", ActorCount: 3},
			},
		})
	}))
	defer ts.Close()

	require.NoError(t, runStatus(ts.URL, false))
	require.NoError(t, runStatus(ts.URL, true))
}

func TestRunStatusPropagatesHTTPErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	require.Error(t, runStatus(ts.URL, false))
}
