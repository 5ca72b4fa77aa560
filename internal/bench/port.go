package bench

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// ErrPortBusy means the benchmark port stayed occupied after one attempt to
// clear a stray iperf3 listener.
var ErrPortBusy = errors.New("benchmark port is busy")

// listenPort is swapped out in tests.
var listenPort = func(port int) error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return l.Close()
}

// ensurePortFree verifies the benchmark port is available. iperf3 always
// opens its control channel on TCP, so a TCP probe covers UDP runs too. If
// the port is held, one remediation attempt is made against a stray prior
// iperf3 server, then a single recheck.
func ensurePortFree(ctx context.Context, port int) error {
	if err := listenPort(port); err == nil {
		return nil
	}

	log.Printf("[bench] port %d occupied, trying to clear a stray iperf3 server", port)
	killCmd := commandContext(ctx, "pkill", "-f", "iperf3 -s")
	if err := killCmd.Run(); err != nil {
		// pkill exits 1 when nothing matched; the recheck decides.
		log.Printf("[bench] stray server cleanup: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := listenPort(port); err != nil {
		return fmt.Errorf("%w: port %d still occupied after cleanup", ErrPortBusy, port)
	}
	return nil
}
