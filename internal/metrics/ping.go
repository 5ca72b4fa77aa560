package metrics

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"strconv"
)

// commandContext is swapped out in tests.
var commandContext = exec.CommandContext

// rtt min/avg/max/mdev = 0.123/0.456/0.789/0.012 ms
var pingAvgPattern = regexp.MustCompile(`rtt [^=]+= [\d.]+/([\d.]+)/`)

// PingLatency runs a ping probe against host and returns the average
// round-trip time in milliseconds.
func PingLatency(ctx context.Context, host string, count int) (float64, error) {
	if count <= 0 {
		count = 10
	}
	var out bytes.Buffer
	cmd := commandContext(ctx, "ping", "-c", strconv.Itoa(count), "-W", "2", host)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	match := pingAvgPattern.FindSubmatch(out.Bytes())
	if match == nil {
		return 0, errors.New("no rtt summary in ping output")
	}
	return strconv.ParseFloat(string(match[1]), 64)
}
