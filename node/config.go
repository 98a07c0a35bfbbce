package node

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"lumen.dev/node/chain"
)

// ConnectionType names how peer slots are filled. ValidateConfig checks it,
// but the coordinator reads neither it nor Config.Addresses nor
// Config.DNSResolver: it dials only addresses passed to Client.AddPeer and
// never accepts inbound connections.
type ConnectionType int

const (
	// ConnectionFull names dialing out and accepting inbound
	// connections, with addresses discovered via DNSResolver.
	ConnectionFull ConnectionType = iota
	// ConnectionStatic names connecting only to Config.Addresses.
	ConnectionStatic
)

// FilterSyncPolicy names what filter sync does when a compact filter the
// watch list does not strictly need goes unanswered. The coordinator does
// not read it: filter sync runs the same way under either value.
type FilterSyncPolicy int

const (
	// FilterSyncHalt names stopping the filter-sync phase on the first
	// unanswered filter request and surfacing a warning.
	FilterSyncHalt FilterSyncPolicy = iota
	// FilterSyncContinue names skipping the missing filter and
	// advancing.
	FilterSyncContinue
)

// SeedResolver discovers candidate peer addresses out of band (DNS seeds,
// a hardcoded list). No implementation ships here, and the coordinator
// never calls Config.DNSResolver.
type SeedResolver interface {
	Resolve() ([]string, error)
}

// Config bundles everything the coordinator needs to run a node.
type Config struct {
	Network  string `json:"network"`
	DataDir  string `json:"data_dir"`
	BindAddr string `json:"bind_addr"`
	LogLevel string `json:"log_level"`

	Params chain.Params `json:"-"`

	Addresses      []string     `json:"addresses"`
	ConnectionType ConnectionType `json:"connection_type"`
	DNSResolver    SeedResolver   `json:"-"`

	TargetPeerSize int      `json:"target_peer_size"`
	RequiredPeers  int      `json:"required_peers"`
	WhiteList      []string `json:"white_list"`

	HeaderCheckpoint chain.HeaderCheckpoint `json:"-"`

	ResponseTimeout   time.Duration `json:"response_timeout"`
	MaxConnectionTime time.Duration `json:"max_connection_time"`

	FilterSyncPolicy  FilterSyncPolicy `json:"filter_sync_policy"`
	EnableV2Transport bool             `json:"enable_v2_transport"`
}

var allowedLogLevels = map[string]struct{}{
	"trace":    {},
	"debug":    {},
	"info":     {},
	"warn":     {},
	"error":    {},
	"critical": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".lumen"
	}
	return filepath.Join(home, ".lumen")
}

// DefaultConfig returns a Config with conservative mainnet defaults.
func DefaultConfig() Config {
	return Config{
		Network:           "mainnet",
		DataDir:           DefaultDataDir(),
		BindAddr:          "0.0.0.0:8333",
		LogLevel:          "info",
		Params:            chain.MainNetParams,
		ConnectionType:    ConnectionFull,
		TargetPeerSize:    8,
		RequiredPeers:     2,
		ResponseTimeout:   30 * time.Second,
		FilterSyncPolicy:  FilterSyncContinue,
		EnableV2Transport: true,
	}
}

// NormalizeAddrs flattens and dedupes comma-separated address lists (CLI
// flags passed multiple times, or one flag with commas).
func NormalizeAddrs(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, p := range strings.Split(token, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// ValidateConfig checks cfg for the early, explicit, field-by-field
// mistakes that would otherwise surface as confusing runtime failures.
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("node: network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("node: data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("node: invalid bind_addr: %w", err)
	}
	for _, addr := range cfg.Addresses {
		if err := validatePeerAddr(addr); err != nil {
			return fmt.Errorf("node: invalid address %q: %w", addr, err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("node: invalid log_level %q", cfg.LogLevel)
	}
	if cfg.TargetPeerSize <= 0 {
		return errors.New("node: target_peer_size must be > 0")
	}
	if cfg.TargetPeerSize > 4096 {
		return errors.New("node: target_peer_size must be <= 4096")
	}
	if cfg.RequiredPeers <= 0 {
		return errors.New("node: required_peers must be > 0")
	}
	if cfg.RequiredPeers > cfg.TargetPeerSize {
		return errors.New("node: required_peers cannot exceed target_peer_size")
	}
	if cfg.ConnectionType == ConnectionStatic && len(cfg.Addresses) == 0 {
		return errors.New("node: static connection type requires at least one address")
	}
	if cfg.ResponseTimeout <= 0 {
		return errors.New("node: response_timeout must be positive")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

func validatePeerAddr(addr string) error {
	if err := validateAddr(addr); err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(addr)
	if strings.TrimSpace(host) == "" {
		return errors.New("missing host")
	}
	return nil
}
