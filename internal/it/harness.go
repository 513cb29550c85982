package it

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"causalcast/internal/causal"
	"causalcast/internal/transport"
)

// DefaultBinary is where the harness looks for the causalcast binary when
// CAUSALCAST_BIN is not set.
const DefaultBinary = "./causalcast"

// BinaryPath returns the binary under test.
func BinaryPath() string {
	if p := os.Getenv("CAUSALCAST_BIN"); p != "" {
		return p
	}
	return DefaultBinary
}

// Cluster represents a test cluster of nodes
type Cluster struct {
	nodes      []*Node
	logDir     string
	binaryPath string
	mu         sync.Mutex
}

// Node represents a single node process in the test cluster
type Node struct {
	ID      int
	Addr    string
	Port    int
	cmd     *exec.Cmd
	logFile *os.File
	conn    *grpc.ClientConn
	client  transport.CausalClient
	health  healthpb.HealthClient
}

// NewCluster creates a new test cluster harness
func NewCluster(binaryPath string) (*Cluster, error) {
	logDir := filepath.Join(".local", "it-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Cluster{
		nodes:      make([]*Node, 0),
		logDir:     logDir,
		binaryPath: binaryPath,
	}, nil
}

// StartCluster starts n nodes on consecutive ports from basePort. Every node
// knows the full membership up front.
func (c *Cluster) StartCluster(ctx context.Context, n, basePort int) error {
	if _, err := os.Stat(c.binaryPath); os.IsNotExist(err) {
		return fmt.Errorf("binary not found at %s, build it first with 'go build -o causalcast ./cmd/causalcast'", c.binaryPath)
	}

	for id := 0; id < n; id++ {
		if err := c.startNode(ctx, id, n, basePort); err != nil {
			c.Stop()
			return fmt.Errorf("failed to start node %d: %w", id, err)
		}
	}

	for _, node := range c.nodes {
		if err := c.waitForReady(ctx, node, 10*time.Second); err != nil {
			c.Stop()
			return fmt.Errorf("node %d failed to become ready: %w", node.ID, err)
		}
	}
	return nil
}

func (c *Cluster) startNode(ctx context.Context, id, n, basePort int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	peers := make([]string, 0, n-1)
	for j := 0; j < n; j++ {
		if j != id {
			peers = append(peers, fmt.Sprintf("%d=127.0.0.1:%d", j, basePort+j))
		}
	}

	port := basePort + id
	logPath := filepath.Join(c.logDir, fmt.Sprintf("node%d.log", id))
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.binaryPath, "serve",
		"--id", fmt.Sprintf("%d", id),
		"--listen", fmt.Sprintf("127.0.0.1:%d", port),
		"--peers", strings.Join(peers, ","),
		"--log-format", "logfmt",
		"--log-level", "debug",
	)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start node %d: %w", id, err)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		cmd.Process.Kill()
		logFile.Close()
		return fmt.Errorf("failed to dial node %d: %w", id, err)
	}

	c.nodes = append(c.nodes, &Node{
		ID:      id,
		Addr:    addr,
		Port:    port,
		cmd:     cmd,
		logFile: logFile,
		conn:    conn,
		client:  transport.NewCausalClient(conn),
		health:  healthpb.NewHealthClient(conn),
	})
	return nil
}

// waitForReady waits for a node to report SERVING on the health service
func (c *Cluster) waitForReady(ctx context.Context, node *Node, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for node %d to be ready", node.ID)
			}

			healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			resp, err := node.health.Check(healthCtx, &healthpb.HealthCheckRequest{})
			cancel()

			if err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING {
				return nil
			}
		}
	}
}

// Stop stops all nodes in the cluster
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, node := range c.nodes {
		node.Stop()
	}
	c.nodes = nil
}

// Stop stops a single node
func (n *Node) Stop() {
	if n.conn != nil {
		n.conn.Close()
	}
	if n.cmd != nil && n.cmd.Process != nil {
		n.cmd.Process.Kill()
		n.cmd.Wait()
	}
	if n.logFile != nil {
		n.logFile.Close()
	}
}

// Broadcast asks the node to multicast payload.
func (n *Node) Broadcast(ctx context.Context, payload string) (causal.Message, error) {
	return transport.Broadcast(ctx, n.client, []byte(payload))
}

// Log fetches the node's delivery log.
func (n *Node) Log(ctx context.Context) ([]causal.Delivery, error) {
	return transport.FetchLog(ctx, n.client)
}

// GetNode returns a node by ID
func (c *Cluster) GetNode(id int) *Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, n := range c.nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// KillNode kills a specific node. A killed node cannot rejoin: protocol
// state is not persisted.
func (c *Cluster) KillNode(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, node := range c.nodes {
		if node.ID == id {
			if node.cmd != nil && node.cmd.Process != nil {
				if err := node.cmd.Process.Kill(); err != nil {
					return fmt.Errorf("failed to kill node %d: %w", id, err)
				}
				node.cmd.Wait()
			}
			return nil
		}
	}
	return fmt.Errorf("node %d not found", id)
}

// WaitForDeliveries polls node's log until it holds at least want entries.
func (c *Cluster) WaitForDeliveries(ctx context.Context, node *Node, want int, timeout time.Duration) ([]causal.Delivery, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		logCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		entries, err := node.Log(logCtx)
		cancel()
		if err == nil && len(entries) >= want {
			return entries, nil
		}
		if time.Now().After(deadline) {
			return entries, fmt.Errorf("node %d delivered %d of %d messages", node.ID, len(entries), want)
		}

		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		case <-ticker.C:
		}
	}
}
