// Package metrics parses iperf3 JSON results and pushes them to a
// Prometheus Pushgateway so tunnel benchmarks land in the monitoring stack.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// iperfResult mirrors the slice of iperf3's JSON output we report on. The
// raw artifact stays untouched on disk; this is only for the metric push.
type iperfResult struct {
	End struct {
		SumSent struct {
			Bytes         int64   `json:"bytes"`
			BitsPerSecond float64 `json:"bits_per_second"`
			Retransmits   int64   `json:"retransmits"`
		} `json:"sum_sent"`
		SumReceived struct {
			Bytes         int64   `json:"bytes"`
			BitsPerSecond float64 `json:"bits_per_second"`
		} `json:"sum_received"`
		Streams []struct {
			UDP *struct {
				JitterMs    float64 `json:"jitter_ms"`
				LostPackets int64   `json:"lost_packets"`
				LostPercent float64 `json:"lost_percent"`
			} `json:"udp"`
		} `json:"streams"`
		CPUUtilizationPercent struct {
			HostTotal   float64 `json:"host_total"`
			RemoteTotal float64 `json:"remote_total"`
		} `json:"cpu_utilization_percent"`
	} `json:"end"`
}

// Summary holds the metrics extracted from one iperf3 run.
type Summary struct {
	ThroughputMbps     float64
	ThroughputRecvMbps float64
	BytesSent          int64
	BytesReceived      int64
	Retransmits        int64
	JitterMs           float64
	LostPackets        int64
	LostPercent        float64
	CPUHostTotal       float64
	CPURemoteTotal     float64

	// LatencyAvgMs is filled by the optional ping probe; negative means
	// not measured.
	LatencyAvgMs float64
}

// ParseIperfJSON extracts the pushed metrics from a raw iperf3 -J result.
func ParseIperfJSON(data []byte) (*Summary, error) {
	var result iperfResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse iperf3 JSON: %v", err)
	}

	s := &Summary{
		ThroughputMbps:     result.End.SumSent.BitsPerSecond / 1e6,
		ThroughputRecvMbps: result.End.SumReceived.BitsPerSecond / 1e6,
		BytesSent:          result.End.SumSent.Bytes,
		BytesReceived:      result.End.SumReceived.Bytes,
		Retransmits:        result.End.SumSent.Retransmits,
		CPUHostTotal:       result.End.CPUUtilizationPercent.HostTotal,
		CPURemoteTotal:     result.End.CPUUtilizationPercent.RemoteTotal,
		LatencyAvgMs:       -1,
	}
	for _, stream := range result.End.Streams {
		if stream.UDP != nil {
			s.JitterMs = stream.UDP.JitterMs
			s.LostPackets = stream.UDP.LostPackets
			s.LostPercent = stream.UDP.LostPercent
		}
	}
	return s, nil
}

// Pusher sends benchmark summaries to a Pushgateway under a job plus
// vpn_type/target grouping labels.
type Pusher struct {
	URL string
	Job string
}

func (p *Pusher) Push(ctx context.Context, vpnType, target string, s *Summary) error {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: prometheus.Labels{"vpn_type": vpnType, "target": target},
		})
		g.Set(value)
		reg.MustRegister(g)
	}

	gauge("vpn_iperf_throughput_mbps", "Sender throughput in Mbit/s.", s.ThroughputMbps)
	gauge("vpn_iperf_throughput_recv_mbps", "Receiver throughput in Mbit/s.", s.ThroughputRecvMbps)
	gauge("vpn_iperf_bytes_sent", "Bytes sent during the test.", float64(s.BytesSent))
	gauge("vpn_iperf_bytes_received", "Bytes received during the test.", float64(s.BytesReceived))
	gauge("vpn_iperf_retransmits", "TCP retransmits during the test.", float64(s.Retransmits))
	gauge("vpn_iperf_jitter_ms", "UDP jitter in milliseconds.", s.JitterMs)
	gauge("vpn_iperf_lost_packets", "UDP packets lost during the test.", float64(s.LostPackets))
	gauge("vpn_iperf_lost_percent", "UDP packet loss percentage.", s.LostPercent)
	gauge("vpn_iperf_cpu_host_total", "Local CPU utilization percentage.", s.CPUHostTotal)
	gauge("vpn_iperf_cpu_remote_total", "Remote CPU utilization percentage.", s.CPURemoteTotal)
	if s.LatencyAvgMs >= 0 {
		gauge("vpn_iperf_latency_avg_ms", "Average ping latency in milliseconds.", s.LatencyAvgMs)
	}
	gauge("vpn_iperf_test_timestamp", "Test completion time in milliseconds since epoch.", float64(time.Now().UnixMilli()))
	gauge("vpn_iperf_test_success", "1 when the test completed.", 1)

	// Grouping label values cannot contain dots.
	targetLabel := strings.ReplaceAll(target, ".", "_")
	return push.New(p.URL, p.Job).
		Grouping("vpn_type", vpnType).
		Grouping("target", targetLabel).
		Gatherer(reg).
		AddContext(ctx)
}
