package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/kit/log/level"
	"github.com/spf13/cobra"

	"causalcast/internal/config"
	"causalcast/internal/metrics"
	"causalcast/internal/node"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath  string
	NodeID      int
	Listen      string
	Peers       string
	MetricsAddr string
	LogLevel    string
	LogFormat   string
	InboxSize   int
	RPCTimeout  time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a causal broadcast node",
		Long: `Run one member of a causal broadcast group.

The group is either described by flags or by a YAML file passed with --config.
Flags that are set explicitly override values from the file. Member IDs,
self included, must be exactly 0..N-1.

Examples:
  causalcast serve --id 0 --listen :7000 --peers 1=127.0.0.1:7001,2=127.0.0.1:7002
  causalcast serve --config node0.yaml --metrics-addr :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd)
			if err != nil {
				return err
			}
			return runServe(commandContext(cmd), cfg, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML node configuration")
	cmd.Flags().IntVar(&opts.NodeID, "id", 0, "node ID in [0, N)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "gRPC listen address")
	cmd.Flags().StringVar(&opts.Peers, "peers", "", "other members as id=addr, comma separated")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "address to expose Prometheus /metrics on")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "json", "log format (json|logfmt)")
	cmd.Flags().IntVar(&opts.InboxSize, "inbox-size", config.DefaultInboxSize, "capacity of each mailbox")
	cmd.Flags().DurationVar(&opts.RPCTimeout, "rpc-timeout", config.DefaultRPCTimeout, "timeout for a single delivery to a peer")

	return cmd
}

// config builds the node configuration from the file and the flags.
func (o *ServeOptions) config(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if o.ConfigPath == "" || flags.Changed("id") {
		cfg.NodeID = o.NodeID
	}
	if o.ConfigPath == "" || flags.Changed("listen") {
		cfg.ListenAddr = o.Listen
	}
	if o.ConfigPath == "" || flags.Changed("peers") {
		peers, err := config.ParsePeers(o.Peers)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --peers", err)
		}
		cfg.Peers = peers
	}
	if o.ConfigPath == "" || flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.MetricsAddr
	}
	if o.ConfigPath == "" || flags.Changed("log-level") {
		cfg.LogLevel = o.LogLevel
	}
	if o.ConfigPath == "" || flags.Changed("log-format") {
		cfg.LogFormat = o.LogFormat
	}
	if o.ConfigPath == "" || flags.Changed("inbox-size") {
		cfg.InboxSize = o.InboxSize
	}
	if o.ConfigPath == "" || flags.Changed("rpc-timeout") {
		cfg.RPCTimeout = o.RPCTimeout
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

	m := metrics.Discard()
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go metrics.Serve(logger, cfg.MetricsAddr)
	}

	n, err := node.New(cfg, logger, m)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create node", err)
	}

	errc := make(chan error, 1)
	go func() {
		errc <- n.Start()
	}()

	select {
	case err := <-errc:
		n.Stop()
		if err != nil {
			return WrapExitError(ExitCommandError, "node stopped", err)
		}
		return nil
	case <-ctx.Done():
		level.Info(logger).Log("msg", "received shutdown signal")
		n.Stop()
		<-errc
		return nil
	}
}
