package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/boorutools/wsroom"
)

func listenCmd(load func() (*config, error)) *cobra.Command {
	var (
		origin string
		rooms  []string
	)

	cmd := &cobra.Command{
		Use:   "listen [endpoint]",
		Short: "Connect, join rooms and print incoming events",
		Long: `Connect to a room server and print every control event.

Lines typed on stdin are commands:
  join <room>     subscribe to a room
  leave <room>    unsubscribe from a room
  rooms           list subscribed rooms
  anything else   sent to the server verbatim

Examples:
  wsroom listen ws://localhost:8080/ws --room post:1
  wsroom listen --origin https://booru.example --room tag:cat`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Listen.Endpoint = args[0]
			}
			if origin != "" {
				cfg.Listen.Origin = origin
			}
			cfg.Listen.Rooms = append(cfg.Listen.Rooms, rooms...)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runListen(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&origin, "origin", "o", "", "Page origin to derive the endpoint from")
	cmd.Flags().StringSliceVarP(&rooms, "room", "r", nil, "Room to join (repeatable)")
	return cmd
}

func runListen(ctx context.Context, cfg *config, in io.Reader, out io.Writer) error {
	logger := cfg.logger()
	shutdownTracing, err := initTracing(ctx, cfg.Trace, logger)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	socket, err := wsroom.NewSocket(cfg.Listen.Endpoint, &wsroom.SocketOptions{
		Origin:               cfg.Listen.Origin,
		Dialer:               &wsroom.WebSocketDialer{WriteTimeout: cfg.Listen.WriteTimeout},
		MaxReconnectAttempts: cfg.Listen.MaxReconnectAttempts,
		Logger:               logger,
	})
	if err != nil {
		return err
	}
	defer socket.Close()

	rooms := wsroom.NewRooms(socket)
	defer rooms.Close()

	connections := 0
	socket.OnOpen(func() {
		connections++
		fmt.Fprintf(out, "connected (#%d) to %s\n", connections, socket.Endpoint())
	})
	socket.OnClose(func(ev wsroom.CloseEvent) {
		fmt.Fprintf(out, "disconnected: code=%d %s\n", ev.Code, ev.Reason)
	})
	socket.OnReconnect(func(ev *wsroom.ReconnectEvent) {
		fmt.Fprintf(out, "reconnecting (attempt %d)\n", ev.Attempt+1)
	})
	socket.OnMessage(func(msg wsroom.Message) {
		if msg.Type == wsroom.TextMessage {
			fmt.Fprintf(out, "< %s\n", msg.Data)
		}
	})

	for _, room := range cfg.Listen.Rooms {
		rooms.Join(room)
	}
	if err := socket.Connect(); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleCommand(socket, rooms, out, strings.TrimSpace(line))
		}
	}
}

func handleCommand(socket *wsroom.Socket, rooms *wsroom.Rooms, out io.Writer, line string) {
	if line == "" {
		return
	}
	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch {
	case verb == "join" && arg != "":
		rooms.Join(arg)
	case verb == "leave" && arg != "":
		rooms.Leave(arg)
	case verb == "rooms":
		fmt.Fprintf(out, "rooms: %s\n", strings.Join(rooms.List(), ", "))
	default:
		if !socket.Send(line) {
			fmt.Fprintf(out, "queued (%d waiting)\n", socket.Buffered())
		}
	}
}
