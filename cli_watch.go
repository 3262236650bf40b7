package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"layerlens/internal/config"
	"layerlens/internal/wsserver"
)

// errNotRunning is returned when no daemon answers on listen_addr.
var errNotRunning = errors.New("layerlens daemon is not running")

const watchDialTimeout = 3 * time.Second

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the update stream of a running daemon",
		Long: `Connect to the running daemon's overlay endpoint and print every message
until interrupted. With --format json the raw frames are printed.

The daemon serves one overlay at a time: watch takes over the connection and
a connected overlay has to reconnect afterwards.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.configPath())
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return runWatch(cmd.Context(), cfg.ListenAddr, rootOpts.Format == "json", cmd.OutOrStdout())
		},
	}
}

func runWatch(ctx context.Context, addr string, raw bool, out io.Writer) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	dialer := websocket.Dialer{HandshakeTimeout: watchDialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("watch: %w: %v", errNotRunning, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		if raw {
			fmt.Fprintf(out, "%s\n", frame)
			continue
		}
		var msg wsserver.Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			fmt.Fprintf(out, "? %s\n", frame)
			continue
		}
		fmt.Fprintln(out, formatWatchMessage(msg))
	}
}

func formatWatchMessage(msg wsserver.Message) string {
	prefix := fmt.Sprintf("#%d %s", msg.Seq, msg.Type)
	switch msg.Type {
	case wsserver.TypeLayout:
		if msg.Layout == nil {
			break
		}
		return fmt.Sprintf("%s default=%s layers=%v switches=%d", prefix,
			msg.Layout.DefaultLayer, msg.Layout.LayerOrder, len(msg.Layout.Switches))
	case wsserver.TypeUpdate:
		parts := make([]string, 0, len(msg.Updates))
		for _, p := range msg.Updates {
			u, err := wsserver.DecodeUpdate(p)
			if err != nil {
				parts = append(parts, "?"+p.Kind)
				continue
			}
			parts = append(parts, fmt.Sprint(u))
		}
		return prefix + " " + strings.Join(parts, " ")
	case wsserver.TypeState:
		if msg.State == nil {
			break
		}
		held := make([]string, 0, len(msg.State.Switches))
		for _, sw := range msg.State.Switches {
			held = append(held, sw.ID+"("+sw.Slot.String()+")")
		}
		return fmt.Sprintf("%s layers=%v switches=[%s]", prefix, msg.State.Layers, strings.Join(held, " "))
	case wsserver.TypeLog:
		if msg.Log == nil {
			break
		}
		return fmt.Sprintf("%s %s %s", prefix, msg.Log.Level, msg.Log.Message)
	case wsserver.TypeStatus:
		return fmt.Sprintf("%s %s", prefix, msg.Status)
	case wsserver.TypeError:
		return fmt.Sprintf("%s %s", prefix, msg.Error)
	}
	return prefix
}
