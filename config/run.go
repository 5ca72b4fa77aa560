package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the side of the benchmark exchange this host plays.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Protocol is the benchmark transport.
type Protocol string

const (
	ProtoTCP Protocol = "tcp"
	ProtoUDP Protocol = "udp"
)

// BindMode selects how the server picks its listen address.
type BindMode string

const (
	// BindNone places no restriction on the listen address.
	BindNone BindMode = "none"
	// BindExplicit uses an operator-supplied address.
	BindExplicit BindMode = "explicit"
	// BindAuto scans local interfaces for a tunnel-side private address.
	BindAuto BindMode = "auto"
)

// Validation errors. All of them fire before any process is spawned.
var (
	ErrInvalidRole     = errors.New("role must be \"server\" or \"client\"")
	ErrMissingPeer     = errors.New("client role requires a peer address")
	ErrInvalidProtocol = errors.New("protocol must be \"tcp\" or \"udp\"")
	ErrInvalidDuration = errors.New("duration must be a positive integer")
	ErrInvalidPort     = errors.New("port must be between 1 and 65535")
)

// Environment overrides, mirroring the flag defaults.
const (
	EnvWGPort   = "TUNNELBENCH_WG_PORT"
	EnvPort     = "TUNNELBENCH_PORT"
	EnvDuration = "TUNNELBENCH_DURATION"
	EnvOut      = "TUNNELBENCH_OUT"
)

// Options holds the raw CLI input before validation. String fields keep the
// operator's text so error messages can echo it back.
type Options struct {
	Role        string
	Peer        string
	BindAddr    string
	BindAuto    bool
	WGPort      int
	BenchPort   int
	Proto       string
	DurationSec int
	OutputDir   string
	Interface   string
	NoCapture   bool
	Debug       bool
}

// RunConfig is the validated configuration for one capture-and-benchmark
// run. It is built exactly once by Resolve and passed to all components;
// nothing reads ambient state after resolution.
type RunConfig struct {
	Role           Role
	Peer           string
	BindMode       BindMode
	BindAddr       string
	WGPort         int
	BenchPort      int
	Proto          Protocol
	DurationSec    int
	OutputDir      string
	Interface      string
	CaptureEnabled bool
	Debug          bool

	// RunID identifies this session in logs and metric labels.
	RunID string
	// Host and Timestamp form the shared artifact key, computed once so
	// every artifact of the run carries the same name components.
	Host      string
	Timestamp time.Time
}

// Resolve validates raw options into a RunConfig. Environment overrides
// have already been folded in by ApplyEnv; no side effects happen here.
func Resolve(opts Options) (*RunConfig, error) {
	role := Role(strings.ToLower(opts.Role))
	if role != RoleServer && role != RoleClient {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidRole, opts.Role)
	}
	if role == RoleClient && opts.Peer == "" {
		return nil, ErrMissingPeer
	}

	proto := ProtoTCP
	if opts.Proto != "" {
		proto = Protocol(strings.ToLower(opts.Proto))
		if proto != ProtoTCP && proto != ProtoUDP {
			return nil, fmt.Errorf("%w: got %q", ErrInvalidProtocol, opts.Proto)
		}
	}

	// No upper bound on duration: long soak runs are legitimate.
	if opts.DurationSec <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDuration, opts.DurationSec)
	}
	if opts.WGPort < 1 || opts.WGPort > 65535 {
		return nil, fmt.Errorf("%w: wg port %d", ErrInvalidPort, opts.WGPort)
	}
	if opts.BenchPort < 1 || opts.BenchPort > 65535 {
		return nil, fmt.Errorf("%w: benchmark port %d", ErrInvalidPort, opts.BenchPort)
	}

	iface := opts.Interface
	if iface == "" {
		iface = "any"
	}
	if err := validateInterfaceName(iface); err != nil {
		return nil, err
	}

	// Bind strategy only matters on the server; an explicit address wins
	// over auto-detection.
	bindMode := BindNone
	if role == RoleServer {
		switch {
		case opts.BindAddr != "":
			bindMode = BindExplicit
		case opts.BindAuto:
			bindMode = BindAuto
		}
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "."
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &RunConfig{
		Role:           role,
		Peer:           opts.Peer,
		BindMode:       bindMode,
		BindAddr:       opts.BindAddr,
		WGPort:         opts.WGPort,
		BenchPort:      opts.BenchPort,
		Proto:          proto,
		DurationSec:    opts.DurationSec,
		OutputDir:      outDir,
		Interface:      iface,
		CaptureEnabled: !opts.NoCapture,
		Debug:          opts.Debug,
		RunID:          uuid.NewString(),
		Host:           host,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// ApplyEnv folds TUNNELBENCH_* variables into opts. explicit reports
// whether the operator set the named flag on the command line; an explicit
// flag always wins over the environment. A nil explicit treats every field
// as defaulted.
func ApplyEnv(opts *Options, explicit func(flag string) bool) {
	if explicit == nil {
		explicit = func(string) bool { return false }
	}
	if v := envInt(EnvWGPort); v != 0 && !explicit("wgport") {
		opts.WGPort = v
	}
	if v := envInt(EnvPort); v != 0 && !explicit("port") {
		opts.BenchPort = v
	}
	if v := envInt(EnvDuration); v != 0 && !explicit("duration") {
		opts.DurationSec = v
	}
	if v := os.Getenv(EnvOut); v != "" && !explicit("out") {
		opts.OutputDir = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// ArtifactName returns "<prefix>-<role>-<host>-<timestamp>.<ext>". The key
// components are fixed at resolution time, so artifacts written at different
// points of the run always match.
func (c *RunConfig) ArtifactName(prefix, ext string) string {
	ts := c.Timestamp.Format("20060102T150405Z")
	return fmt.Sprintf("%s-%s-%s-%s.%s", prefix, c.Role, c.Host, ts, ext)
}

// Duration returns the benchmark duration as a time.Duration.
func (c *RunConfig) Duration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}

var ifaceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateInterfaceName rejects interface names that could smuggle shell
// metacharacters into the capture command line.
func validateInterfaceName(name string) error {
	if name == "" {
		return errors.New("interface name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("interface name too long: %d characters", len(name))
	}
	if !ifaceNamePattern.MatchString(name) {
		return fmt.Errorf("interface name contains invalid characters: %q", name)
	}
	return nil
}
