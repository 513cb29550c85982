package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by Load and ApplyDefaults.
const (
	DefaultLogLevel   = "info"
	DefaultInboxSize  = 256
	DefaultRPCTimeout = 5 * time.Second
)

// Peer represents a member of the group.
type Peer struct {
	ID   int    `yaml:"id"`
	Addr string `yaml:"addr"`
}

// Config holds the node configuration.
type Config struct {
	NodeID      int           `yaml:"node_id"`
	ListenAddr  string        `yaml:"listen"`
	Peers       []Peer        `yaml:"peers"`
	MetricsAddr string        `yaml:"metrics_addr,omitempty"`
	LogLevel    string        `yaml:"log_level,omitempty"`
	LogFormat   string        `yaml:"log_format,omitempty"`
	InboxSize   int           `yaml:"inbox_size,omitempty"`
	RPCTimeout  time.Duration `yaml:"rpc_timeout,omitempty"`
}

// ParsePeers parses a comma-separated list of peers in the format:
// "0=addr0,1=addr1,2=addr2"
func ParsePeers(peersStr string) ([]Peer, error) {
	if peersStr == "" {
		return []Peer{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]Peer, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid peer format: %s (expected id=addr)", part)
		}

		idStr := strings.TrimSpace(kv[0])
		addr := strings.TrimSpace(kv[1])

		if idStr == "" || addr == "" {
			return nil, fmt.Errorf("peer ID and address cannot be empty: %s", part)
		}

		id, err := strconv.Atoi(idStr)
		if err != nil {
			return nil, fmt.Errorf("invalid peer ID %q: %w", idStr, err)
		}

		peers = append(peers, Peer{
			ID:   id,
			Addr: addr,
		})
	}

	return peers, nil
}

// Load reads a YAML config file, rejecting unknown fields, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.InboxSize <= 0 {
		c.InboxSize = DefaultInboxSize
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = DefaultRPCTimeout
	}
}

// Members returns every group member sorted by ID, self included.
// The self entry uses ListenAddr when the peer list does not name it.
func (c *Config) Members() []Peer {
	byID := make(map[int]Peer, len(c.Peers)+1)
	for _, p := range c.Peers {
		byID[p.ID] = p
	}
	if _, ok := byID[c.NodeID]; !ok {
		byID[c.NodeID] = Peer{ID: c.NodeID, Addr: c.ListenAddr}
	}

	members := make([]Peer, 0, len(byID))
	for _, p := range byID {
		members = append(members, p)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// TotalNodes returns the group size N.
func (c *Config) TotalNodes() int {
	return len(c.Members())
}

// Validate checks that the group is well formed: member IDs are exactly
// 0..N-1 with no duplicates and every member has an address.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	seen := make(map[int]bool, len(c.Peers))
	for _, p := range c.Peers {
		if seen[p.ID] {
			return fmt.Errorf("duplicate peer ID %d", p.ID)
		}
		seen[p.ID] = true
		if p.Addr == "" {
			return fmt.Errorf("peer %d has no address", p.ID)
		}
	}

	members := c.Members()
	for i, m := range members {
		if m.ID != i {
			return fmt.Errorf("member IDs must be 0..%d without gaps, found %d at position %d", len(members)-1, m.ID, i)
		}
	}
	return nil
}
