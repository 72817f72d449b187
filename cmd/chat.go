package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	contractx "github.com/tanpawarit/Chative-Digital-Twin/agent/contract"
	"github.com/tanpawarit/Chative-Digital-Twin/agent/transport"
)

func newChatCmd() *cobra.Command {
	var (
		business string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "chat <message>",
		Short: "Run one conversation turn against a business and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			sink, err := chatSink(format, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			req := contractx.TurnRequest{
				BusinessID: business,
				Messages: []contractx.InboundMessage{{
					Role:    contractx.RoleUser,
					Content: strings.Join(args, " "),
				}},
			}
			return transport.Serve(ctx, a.turns.TurnTimeout(), sink, func(ctx context.Context, sink contractx.EventSink) error {
				return a.turns.HandleTurn(ctx, req, sink)
			})
		},
	}

	cmd.Flags().StringVar(&business, "business", "", "business id or slug")
	cmd.Flags().StringVar(&format, "format", "auto", "output format: plain, json or auto (json when stdout is not a terminal)")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func chatSink(format string, out, diag io.Writer) (contractx.EventSink, error) {
	switch format {
	case "plain":
		return newPlainSink(out, diag), nil
	case "json":
		return transport.NewNDJSON(out), nil
	case "auto":
		if f, ok := out.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			return transport.NewNDJSON(out), nil
		}
		return newPlainSink(out, diag), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// plainSink prints reply text to out and tool activity and errors to
// diag.
type plainSink struct {
	out  io.Writer
	diag io.Writer

	mu     sync.Mutex
	closed bool
}

func newPlainSink(out, diag io.Writer) *plainSink {
	return &plainSink{out: out, diag: diag}
}

func (p *plainSink) Emit(_ context.Context, ev contractx.StreamEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return transport.ErrStreamClosed
	}

	var err error
	switch ev.Type {
	case contractx.EventTextDelta:
		_, err = io.WriteString(p.out, ev.Delta)
	case contractx.EventToolCallStarted:
		if ev.ToolCall != nil {
			_, err = fmt.Fprintf(p.diag, "[tool] %s %s\n", ev.ToolCall.Tool, ev.ToolCall.Input)
		}
	case contractx.EventToolCallResult:
		if ev.ToolResult != nil {
			_, err = fmt.Fprintf(p.diag, "[tool] %s -> %s\n", ev.ToolResult.Tool, toolSummary(*ev.ToolResult))
		}
	case contractx.EventTurnComplete:
		p.closed = true
		_, err = io.WriteString(p.out, "\n")
	case contractx.EventTurnError:
		p.closed = true
		if ev.Error != nil {
			_, err = fmt.Fprintf(p.diag, "\nerror: %s: %s\n", ev.Error.Code, ev.Error.Message)
		}
	}
	return err
}

func toolSummary(r contractx.ToolResult) string {
	if r.Error != nil {
		return fmt.Sprintf("error %s: %s", r.Error.Code, r.Error.Message)
	}
	data, err := json.Marshal(r.Output)
	if err != nil {
		return "ok"
	}
	return string(data)
}
