package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestNewRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.CommitsTotal.WithLabelValues("ok").Inc()
	m.ReloadsTotal.WithLabelValues("manual", "ok").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReloadsTotal.WithLabelValues("manual", "ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.LiveDocs.Set(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LiveDocs))
}

func TestServerServesConfiguredPath(t *testing.T) {
	Default()
	s := NewServer(0, "/prom")
	require.NoError(t, s.Start())
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/prom")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "textindex_")

	resp, err = http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "/prom")

	resp, err = http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerStartReportsTakenPort(t *testing.T) {
	first := NewServer(0, "")
	require.NoError(t, first.Start())
	defer first.Shutdown(context.Background())

	_, port, err := net.SplitHostPort(first.Addr())
	require.NoError(t, err)
	n, err := strconv.Atoi(port)
	require.NoError(t, err)
	assert.Error(t, NewServer(n, "").Start())
}
