package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tcpResultJSON = `{
	"end": {
		"sum_sent": {"bytes": 1250000000, "bits_per_second": 1000000000, "retransmits": 42},
		"sum_received": {"bytes": 1249000000, "bits_per_second": 999200000},
		"streams": [{}],
		"cpu_utilization_percent": {"host_total": 12.5, "remote_total": 8.3}
	}
}`

const udpResultJSON = `{
	"end": {
		"sum_sent": {"bytes": 625000000, "bits_per_second": 500000000},
		"sum_received": {"bytes": 620000000, "bits_per_second": 496000000},
		"streams": [{"udp": {"jitter_ms": 0.21, "lost_packets": 117, "lost_percent": 0.8}}],
		"cpu_utilization_percent": {"host_total": 20.1, "remote_total": 5.0}
	}
}`

func TestParseIperfJSON_TCP(t *testing.T) {
	s, err := ParseIperfJSON([]byte(tcpResultJSON))
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, s.ThroughputMbps, 0.01)
	assert.InDelta(t, 999.2, s.ThroughputRecvMbps, 0.01)
	assert.Equal(t, int64(1250000000), s.BytesSent)
	assert.Equal(t, int64(42), s.Retransmits)
	assert.InDelta(t, 12.5, s.CPUHostTotal, 0.01)
	// TCP results carry no UDP stream stats.
	assert.Zero(t, s.JitterMs)
	assert.Zero(t, s.LostPackets)
}

func TestParseIperfJSON_UDP(t *testing.T) {
	s, err := ParseIperfJSON([]byte(udpResultJSON))
	require.NoError(t, err)
	assert.InDelta(t, 500.0, s.ThroughputMbps, 0.01)
	assert.InDelta(t, 0.21, s.JitterMs, 0.001)
	assert.Equal(t, int64(117), s.LostPackets)
	assert.InDelta(t, 0.8, s.LostPercent, 0.001)
	assert.Zero(t, s.Retransmits)
}

func TestParseIperfJSON_Malformed(t *testing.T) {
	_, err := ParseIperfJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestPusher_Push(t *testing.T) {
	var gotPath string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := ParseIperfJSON([]byte(udpResultJSON))
	require.NoError(t, err)

	p := &Pusher{URL: srv.URL, Job: "iperf_test"}
	require.NoError(t, p.Push(context.Background(), "wireguard", "10.10.10.2", s))

	assert.Contains(t, gotPath, "/metrics/job/iperf_test")
	assert.Contains(t, gotPath, "vpn_type/wireguard")
	// Grouping label values cannot contain dots.
	assert.Contains(t, gotPath, "target/10_10_10_2")
	assert.Contains(t, gotBody, "vpn_iperf_throughput_mbps")
	assert.Contains(t, gotBody, "vpn_iperf_jitter_ms")
}

func TestPusher_PushGatewayDown(t *testing.T) {
	s, err := ParseIperfJSON([]byte(tcpResultJSON))
	require.NoError(t, err)

	p := &Pusher{URL: "http://127.0.0.1:1", Job: "iperf_test"}
	err = p.Push(context.Background(), "direct", "192.168.56.102", s)
	assert.Error(t, err)
}

func TestPusher_LatencyGaugeOnlyWhenMeasured(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := ParseIperfJSON([]byte(tcpResultJSON))
	require.NoError(t, err)
	require.Negative(t, s.LatencyAvgMs)

	p := &Pusher{URL: srv.URL, Job: "iperf_test"}
	require.NoError(t, p.Push(context.Background(), "ipsec", "10.2.0.1", s))
	assert.False(t, strings.Contains(gotBody, "vpn_iperf_latency_avg_ms"))

	s.LatencyAvgMs = 1.25
	require.NoError(t, p.Push(context.Background(), "ipsec", "10.2.0.1", s))
	assert.Contains(t, gotBody, "vpn_iperf_latency_avg_ms")
}
