package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validOptions() Options {
	return Options{
		Role:        "server",
		WGPort:      51820,
		BenchPort:   5201,
		Proto:       "tcp",
		DurationSec: 10,
	}
}

func TestResolve_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr error
	}{
		{"empty role", func(o *Options) { o.Role = "" }, ErrInvalidRole},
		{"bogus role", func(o *Options) { o.Role = "observer" }, ErrInvalidRole},
		{"client without peer", func(o *Options) { o.Role = "client"; o.Peer = "" }, ErrMissingPeer},
		{"bogus protocol", func(o *Options) { o.Proto = "sctp" }, ErrInvalidProtocol},
		{"zero duration", func(o *Options) { o.DurationSec = 0 }, ErrInvalidDuration},
		{"negative duration", func(o *Options) { o.DurationSec = -5 }, ErrInvalidDuration},
		{"wg port out of range", func(o *Options) { o.WGPort = 70000 }, ErrInvalidPort},
		{"bench port out of range", func(o *Options) { o.BenchPort = 0 }, ErrInvalidPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			tt.mutate(&opts)
			_, err := Resolve(opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestResolve_RoleAndProtoCaseInsensitive(t *testing.T) {
	opts := validOptions()
	opts.Role = "Server"
	opts.Proto = "UDP"
	cfg, err := Resolve(opts)
	require.NoError(t, err)
	assert.Equal(t, RoleServer, cfg.Role)
	assert.Equal(t, ProtoUDP, cfg.Proto)
}

func TestResolve_BindStrategy(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		bindAddr string
		bindAuto bool
		want     BindMode
	}{
		{"server default", "server", "", false, BindNone},
		{"server auto", "server", "", true, BindAuto},
		{"server explicit", "server", "10.10.10.1", false, BindExplicit},
		{"explicit wins over auto", "server", "10.10.10.1", true, BindExplicit},
		// Bind strategy is only meaningful for the server.
		{"client ignores bind flags", "client", "10.10.10.1", true, BindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := validOptions()
			opts.Role = tt.role
			opts.Peer = "10.10.10.2"
			opts.BindAddr = tt.bindAddr
			opts.BindAuto = tt.bindAuto
			cfg, err := Resolve(opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.BindMode)
		})
	}
}

func TestResolve_Defaults(t *testing.T) {
	opts := validOptions()
	opts.Proto = ""
	opts.Interface = ""
	opts.OutputDir = ""
	cfg, err := Resolve(opts)
	require.NoError(t, err)
	assert.Equal(t, ProtoTCP, cfg.Proto)
	assert.Equal(t, "any", cfg.Interface)
	assert.Equal(t, ".", cfg.OutputDir)
	assert.True(t, cfg.CaptureEnabled)
	assert.NotEmpty(t, cfg.RunID)
	assert.NotEmpty(t, cfg.Host)
}

func TestApplyEnv_FillsDefaultedFields(t *testing.T) {
	t.Setenv(EnvPort, "5202")
	t.Setenv(EnvDuration, "30")
	t.Setenv(EnvOut, "/tmp/results")

	opts := validOptions()
	ApplyEnv(&opts, nil)

	cfg, err := Resolve(opts)
	require.NoError(t, err)
	assert.Equal(t, 5202, cfg.BenchPort)
	assert.Equal(t, 30, cfg.DurationSec)
	assert.Equal(t, "/tmp/results", cfg.OutputDir)
}

// A flag the operator typed out beats the environment; env only stands in
// for defaults.
func TestApplyEnv_ExplicitFlagWins(t *testing.T) {
	t.Setenv(EnvDuration, "30")
	t.Setenv(EnvPort, "5202")

	opts := validOptions()
	opts.DurationSec = 5
	ApplyEnv(&opts, func(flag string) bool { return flag == "duration" })

	assert.Equal(t, 5, opts.DurationSec, "explicit --duration kept")
	assert.Equal(t, 5202, opts.BenchPort, "defaulted port still overridden")
}

func TestResolve_NoSideEffects(t *testing.T) {
	opts := validOptions()
	opts.OutputDir = t.TempDir() + "/not-created-yet"
	cfg, err := Resolve(opts)
	require.NoError(t, err)
	assert.NoDirExists(t, cfg.OutputDir)
}

// The timestamp and hostname key must be computed once, so artifacts written
// at different points of the run share the same name components.
func TestArtifactName_StableWithinRun(t *testing.T) {
	cfg, err := Resolve(validOptions())
	require.NoError(t, err)

	pcap := cfg.ArtifactName("capture", "pcap")
	result := cfg.ArtifactName("iperf", "json")
	capLog := cfg.ArtifactName("capture", "log")

	key := strings.TrimSuffix(strings.TrimPrefix(pcap, "capture-"), ".pcap")
	assert.Equal(t, "iperf-"+key+".json", result)
	assert.Equal(t, "capture-"+key+".log", capLog)
	assert.Contains(t, key, string(cfg.Role))
	assert.Contains(t, key, cfg.Host)
}

func TestValidateInterfaceName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{"valid basic interface", "eth0", false},
		{"valid wildcard", "any", false},
		{"valid tunnel interface", "wg0", false},
		{"valid vlan interface", "eth0.100", false},
		{"valid with dash and underscore", "veth_test-1", false},
		{"empty string", "", true},
		{"command injection semicolon", "eth0; rm -rf /", true},
		{"command injection backtick", "eth0`whoami`", true},
		{"command injection dollar", "eth0$(whoami)", true},
		{"path traversal", "../../../etc/passwd", true},
		{"space", "eth0 test", true},
		{"too long", strings.Repeat("a", 256), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateInterfaceName(tt.input)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
