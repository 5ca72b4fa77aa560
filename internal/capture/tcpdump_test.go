//go:build linux || darwin

package capture

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	dir := t.TempDir()
	return Config{
		Interface: "any",
		Port:      51820,
		PCAPPath:  filepath.Join(dir, "capture.pcap"),
		LogPath:   filepath.Join(dir, "capture.log"),
	}
}

func patchCommand(t *testing.T, name string, arg ...string) {
	orig := commandContext
	commandContext = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, name, arg...)
	}
	t.Cleanup(func() { commandContext = orig })
}

func patchEuid(t *testing.T, uid int) {
	orig := geteuid
	geteuid = func() int { return uid }
	t.Cleanup(func() { geteuid = orig })
}

func patchStopWaits(t *testing.T, grace, reap time.Duration) {
	origGrace, origReap := stopGraceWait, stopReapWait
	stopGraceWait, stopReapWait = grace, reap
	t.Cleanup(func() { stopGraceWait, stopReapWait = origGrace, origReap })
}

func TestTcpdumpCapturer_StartAndStop(t *testing.T) {
	patchCommand(t, "sleep", "60")
	patchEuid(t, 0)
	c := NewTcpdumpCapturer()

	h, err := c.Start(context.Background(), testConfig(t))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.NotZero(t, h.PID())

	require.NoError(t, c.Stop(h))

	// Stop is idempotent and safe after the process has exited.
	require.NoError(t, c.Stop(h))
	require.NoError(t, c.Stop(h))
}

func TestTcpdumpCapturer_StartFailed_ImmediateExit(t *testing.T) {
	patchCommand(t, "false")
	c := NewTcpdumpCapturer()

	h, err := c.Start(context.Background(), testConfig(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCaptureStartFailed))
	assert.Nil(t, h)
}

func TestTcpdumpCapturer_StartFailed_MissingBinary(t *testing.T) {
	patchCommand(t, "definitely-not-a-real-binary-zz")
	c := NewTcpdumpCapturer()

	_, err := c.Start(context.Background(), testConfig(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCaptureStartFailed))
}

// An elevated capture is root-owned, so teardown must go through sudo
// rather than signalling directly from the unprivileged parent.
func TestTcpdumpCapturer_StopElevated_SignalsThroughSudo(t *testing.T) {
	patchEuid(t, 1000)
	patchStopWaits(t, 50*time.Millisecond, 50*time.Millisecond)

	var mu sync.Mutex
	var kills [][]string
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if name == "sudo" && len(args) > 1 && args[1] == "kill" {
			mu.Lock()
			kills = append(kills, append([]string{name}, args...))
			mu.Unlock()
			// Deliver nothing, as when sudo itself is denied.
			return exec.CommandContext(ctx, "true")
		}
		return exec.CommandContext(ctx, "sleep", "60")
	}
	t.Cleanup(func() { commandContext = orig })

	c := NewTcpdumpCapturer()
	h, err := c.Start(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.cmd.Process.Kill()
		<-h.done
	})

	// Neither interrupt nor kill reaches the process; Stop must still
	// return within its bounds instead of blocking forever.
	done := make(chan error, 1)
	go func() { done <- c.Stop(h) }()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	pgid := strconv.Itoa(-h.PID())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, kills, 2, "interrupt then kill")
	assert.Equal(t, []string{"sudo", "-n", "kill", "-2", "--", pgid}, kills[0])
	assert.Equal(t, []string{"sudo", "-n", "kill", "-9", "--", pgid}, kills[1])
}

func TestTcpdumpCapturer_StopNilHandle(t *testing.T) {
	c := NewTcpdumpCapturer()
	assert.NoError(t, c.Stop(nil))
	assert.NoError(t, c.Stop(&Handle{}))
}

func TestHandle_NilAccessors(t *testing.T) {
	var h *Handle
	assert.Zero(t, h.PID())
	assert.Empty(t, h.PCAPPath())
	assert.Empty(t, h.LogPath())
}
