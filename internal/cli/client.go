package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"causalcast/internal/causal"
	"causalcast/internal/transport"
)

// ClientOptions holds flags for commands that talk to a running node.
type ClientOptions struct {
	*RootOptions
	Addr    string
	Timeout time.Duration
}

func (o *ClientOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Addr, "addr", "127.0.0.1:7000", "gRPC address of the node")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", transport.DefaultTimeout, "request timeout")
}

// dial connects to the node and returns a client and a function that
// releases the connection.
func (o *ClientOptions) dial() (transport.CausalClient, func(), error) {
	conn, err := grpc.NewClient(o.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to dial %s", o.Addr), err)
	}
	return transport.NewCausalClient(conn), func() { conn.Close() }, nil
}

// MessageView is the printable form of a message.
type MessageView struct {
	ID      string `json:"id"`
	Sender  int    `json:"sender"`
	Clock   string `json:"clock"`
	Payload string `json:"payload"`
}

// DeliveryView is the printable form of a delivery log entry.
type DeliveryView struct {
	Receiver int    `json:"receiver"`
	Sender   int    `json:"sender"`
	ID       string `json:"id"`
	Clock    string `json:"clock"`
	Payload  string `json:"payload"`
}

// NewBroadcastCommand creates the broadcast command.
func NewBroadcastCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "broadcast <payload>",
		Short: "Ask a running node to broadcast a payload",
		Long: `Ask a running node to multicast a payload to every other member.

The node stamps the message with its vector clock and prints it back.

Examples:
  causalcast broadcast --addr 127.0.0.1:7000 "Deposit $10,000"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := opts.dial()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(commandContext(cmd), opts.Timeout)
			defer cancel()

			msg, err := transport.Broadcast(ctx, client, []byte(args[0]))
			if err != nil {
				return WrapExitError(ExitCommandError, "broadcast failed", err)
			}

			view := messageView(msg)
			text := fmt.Sprintf("sent %s from node %d clock %s\n", view.ID, view.Sender, view.Clock)
			return opts.formatter(cmd).Success(view, text)
		},
	}
	opts.addFlags(cmd)

	return cmd
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClientOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the delivery log of a running node",
		Long: `Print the messages a running node has delivered, in delivery order.

Examples:
  causalcast log --addr 127.0.0.1:7002
  causalcast log --addr 127.0.0.1:7002 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeFn, err := opts.dial()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, cancel := context.WithTimeout(commandContext(cmd), opts.Timeout)
			defer cancel()

			entries, err := transport.FetchLog(ctx, client)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to fetch delivery log", err)
			}

			views := make([]DeliveryView, 0, len(entries))
			var b strings.Builder
			for _, d := range entries {
				v := deliveryView(d)
				views = append(views, v)
				fmt.Fprintf(&b, "node %d <- node %d  %s  %s  %q\n", v.Receiver, v.Sender, v.Clock, v.ID, v.Payload)
			}
			if len(entries) == 0 {
				b.WriteString("no deliveries\n")
			}
			return opts.formatter(cmd).Success(views, b.String())
		},
	}
	opts.addFlags(cmd)

	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func messageView(msg causal.Message) MessageView {
	return MessageView{
		ID:      msg.ID(),
		Sender:  msg.Sender(),
		Clock:   msg.Clock().String(),
		Payload: string(msg.Payload()),
	}
}

func deliveryView(d causal.Delivery) DeliveryView {
	return DeliveryView{
		Receiver: d.Receiver,
		Sender:   d.Sender,
		ID:       d.MessageID,
		Clock:    d.Clock.String(),
		Payload:  string(d.Payload),
	}
}
