package metrics

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pingOutput = `PING 10.10.10.2 (10.10.10.2) 56(84) bytes of data.
64 bytes from 10.10.10.2: icmp_seq=1 ttl=64 time=0.512 ms

--- 10.10.10.2 ping statistics ---
3 packets transmitted, 3 received, 0% packet loss, time 2041ms
rtt min/avg/max/mdev = 0.412/0.456/0.512/0.041 ms`

func patchPing(t *testing.T, name string, arg ...string) *[][]string {
	var captured [][]string
	orig := commandContext
	commandContext = func(ctx context.Context, cmdName string, cmdArg ...string) *exec.Cmd {
		captured = append(captured, append([]string{cmdName}, cmdArg...))
		return exec.CommandContext(ctx, name, arg...)
	}
	t.Cleanup(func() { commandContext = orig })
	return &captured
}

func TestPingLatency(t *testing.T) {
	captured := patchPing(t, "echo", pingOutput)

	latency, err := PingLatency(context.Background(), "10.10.10.2", 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.456, latency, 0.0001)

	require.Len(t, *captured, 1)
	assert.Equal(t, []string{"ping", "-c", "3", "-W", "2", "10.10.10.2"}, (*captured)[0])
}

func TestPingLatency_DefaultCount(t *testing.T) {
	captured := patchPing(t, "echo", pingOutput)

	_, err := PingLatency(context.Background(), "10.10.10.2", 0)
	require.NoError(t, err)
	assert.Equal(t, "10", (*captured)[0][2])
}

func TestPingLatency_HostUnreachable(t *testing.T) {
	patchPing(t, "false")
	_, err := PingLatency(context.Background(), "10.255.255.1", 3)
	assert.Error(t, err)
}

func TestPingLatency_NoRTTSummary(t *testing.T) {
	patchPing(t, "echo", "garbage output")
	_, err := PingLatency(context.Background(), "10.10.10.2", 3)
	assert.Error(t, err)
}
