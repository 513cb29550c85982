package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Peer
		wantErr bool
	}{
		{
			name:  "empty string",
			input: "",
			want:  []Peer{},
		},
		{
			name:  "single peer",
			input: "0=127.0.0.1:7000",
			want: []Peer{
				{ID: 0, Addr: "127.0.0.1:7000"},
			},
		},
		{
			name:  "multiple peers",
			input: "0=127.0.0.1:7000,1=127.0.0.1:7001,2=127.0.0.1:7002",
			want: []Peer{
				{ID: 0, Addr: "127.0.0.1:7000"},
				{ID: 1, Addr: "127.0.0.1:7001"},
				{ID: 2, Addr: "127.0.0.1:7002"},
			},
		},
		{
			name:  "with spaces",
			input: "0 = 127.0.0.1:7000 , 1 = 127.0.0.1:7001",
			want: []Peer{
				{ID: 0, Addr: "127.0.0.1:7000"},
				{ID: 1, Addr: "127.0.0.1:7001"},
			},
		},
		{
			name:    "invalid format - no equals",
			input:   "0:127.0.0.1:7000",
			wantErr: true,
		},
		{
			name:    "invalid format - empty ID",
			input:   "=127.0.0.1:7000",
			wantErr: true,
		},
		{
			name:    "invalid format - empty addr",
			input:   "0=",
			wantErr: true,
		},
		{
			name:    "non-numeric ID",
			input:   "n1=127.0.0.1:7000",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePeers(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfig_Members(t *testing.T) {
	cfg := &Config{
		NodeID:     1,
		ListenAddr: ":7001",
		Peers: []Peer{
			{ID: 2, Addr: "127.0.0.1:7002"},
			{ID: 0, Addr: "127.0.0.1:7000"},
		},
	}

	members := cfg.Members()
	require.Len(t, members, 3)
	assert.Equal(t, Peer{ID: 0, Addr: "127.0.0.1:7000"}, members[0])
	assert.Equal(t, Peer{ID: 1, Addr: ":7001"}, members[1], "self is added from the listen address")
	assert.Equal(t, Peer{ID: 2, Addr: "127.0.0.1:7002"}, members[2])
	assert.Equal(t, 3, cfg.TotalNodes())
}

func TestConfig_MembersPrefersPeerEntryForSelf(t *testing.T) {
	cfg := &Config{
		NodeID:     0,
		ListenAddr: ":7000",
		Peers: []Peer{
			{ID: 0, Addr: "10.0.0.1:7000"},
			{ID: 1, Addr: "10.0.0.2:7000"},
		},
	}

	assert.Equal(t, "10.0.0.1:7000", cfg.Members()[0].Addr)
	assert.Equal(t, 2, cfg.TotalNodes())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg:  Config{NodeID: 0, ListenAddr: ":7000", Peers: []Peer{{ID: 1, Addr: "b:1"}, {ID: 2, Addr: "c:1"}}},
		},
		{
			name: "single node group",
			cfg:  Config{NodeID: 0, ListenAddr: ":7000"},
		},
		{
			name:    "missing listen",
			cfg:     Config{NodeID: 0},
			wantErr: "listen address",
		},
		{
			name:    "gap in ids",
			cfg:     Config{NodeID: 0, ListenAddr: ":7000", Peers: []Peer{{ID: 2, Addr: "c:1"}}},
			wantErr: "without gaps",
		},
		{
			name:    "negative self id",
			cfg:     Config{NodeID: -1, ListenAddr: ":7000", Peers: []Peer{{ID: 0, Addr: "a:1"}}},
			wantErr: "without gaps",
		},
		{
			name:    "duplicate peer",
			cfg:     Config{NodeID: 0, ListenAddr: ":7000", Peers: []Peer{{ID: 1, Addr: "b:1"}, {ID: 1, Addr: "b:2"}}},
			wantErr: "duplicate",
		},
		{
			name:    "empty peer address",
			cfg:     Config{NodeID: 0, ListenAddr: ":7000", Peers: []Peer{{ID: 1}}},
			wantErr: "no address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	err := os.WriteFile(path, []byte(`
node_id: 1
listen: ":7001"
peers:
  - id: 0
    addr: "127.0.0.1:7000"
  - id: 2
    addr: "127.0.0.1:7002"
rpc_timeout: 2s
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.NodeID)
	assert.Equal(t, ":7001", cfg.ListenAddr)
	assert.Len(t, cfg.Peers, 2)
	assert.Equal(t, 2*time.Second, cfg.RPCTimeout)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultInboxSize, cfg.InboxSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: 0\nlisten: \":7000\"\npeer: []\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
