// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	t.Parallel()
	r := New()
	r.Tick(2*time.Millisecond, 3, 10, 1)
	r.Message("call")
	r.Message("call")
	r.Message("signal")
	r.Error("unknown_node")
	r.Disconnect("peer_closed")

	if got := testutil.ToFloat64(r.clients); got != 3 {
		t.Errorf("clients = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.nodes); got != 10 {
		t.Errorf("nodes = %v, want 10", got)
	}
	if got := testutil.ToFloat64(r.messages.WithLabelValues("call")); got != 2 {
		t.Errorf("messages{call} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.errors.WithLabelValues("unknown_node")); got != 1 {
		t.Errorf("errors{unknown_node} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.disconnects.WithLabelValues("peer_closed")); got != 1 {
		t.Errorf("disconnects{peer_closed} = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	t.Parallel()
	r := New()
	r.Message("call")

	recorder := httptest.NewRecorder()
	r.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(recorder.Body)
	for _, want := range []string{
		`stardust_messages_total{kind="call"} 1`,
		"stardust_tick_duration_seconds_bucket",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNilRecorder(t *testing.T) {
	t.Parallel()
	var r *Recorder
	r.Tick(time.Millisecond, 1, 1, 1)
	r.Message("call")
	r.Error("timeout")
	r.Disconnect("kicked")
	if r.Registry() != nil {
		t.Error("nil recorder returned a registry")
	}
	recorder := httptest.NewRecorder()
	r.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	if recorder.Code != 404 {
		t.Errorf("nil recorder handler status = %d, want 404", recorder.Code)
	}
}
