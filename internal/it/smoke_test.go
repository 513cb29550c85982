package it

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startCluster(t *testing.T, ctx context.Context, n, basePort int) *Cluster {
	t.Helper()

	binaryPath := BinaryPath()
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skip("Binary not found, skipping integration test. Build with: go build -o causalcast ./cmd/causalcast")
	}

	cluster, err := NewCluster(binaryPath)
	require.NoError(t, err)
	t.Cleanup(cluster.Stop)

	require.NoError(t, cluster.StartCluster(ctx, n, basePort), "Failed to start cluster")
	return cluster
}

func TestSmoke_CausalChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cluster := startCluster(t, ctx, 3, 61051)
	node0, node1, node2 := cluster.GetNode(0), cluster.GetNode(1), cluster.GetNode(2)

	deposit, err := node0.Broadcast(ctx, "Deposit $10,000")
	require.NoError(t, err)

	_, err = cluster.WaitForDeliveries(ctx, node1, 1, 10*time.Second)
	require.NoError(t, err)

	withdraw, err := node1.Broadcast(ctx, "Withdraw $10,000")
	require.NoError(t, err)
	assert.Equal(t, "[1 1 0]", withdraw.Clock().String())

	entries, err := cluster.WaitForDeliveries(ctx, node2, 2, 10*time.Second)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, deposit.ID(), entries[0].MessageID)
	assert.Equal(t, withdraw.ID(), entries[1].MessageID)

	entries, err = cluster.WaitForDeliveries(ctx, node0, 1, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, withdraw.ID(), entries[0].MessageID)
}

func TestSmoke_ToleratesOneNodeDown(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cluster := startCluster(t, ctx, 3, 61061)
	require.NoError(t, cluster.KillNode(2))

	node0, node1 := cluster.GetNode(0), cluster.GetNode(1)
	for _, payload := range []string{"a", "b", "c"} {
		_, err := node0.Broadcast(ctx, payload)
		require.NoError(t, err)
	}

	entries, err := cluster.WaitForDeliveries(ctx, node1, 3, 10*time.Second)
	require.NoError(t, err)
	for i, payload := range []string{"a", "b", "c"} {
		assert.Equal(t, payload, string(entries[i].Payload))
	}
}
