// relaytest is a console chat client for the relay.
// Usage: go run ./cmd/relaytest --url ws://localhost:8000 --name alice
//
// Lines typed on stdin are sent as public messages. "/msg <user> <text>"
// sends a private message and "/quit" disconnects.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rickgao/chat-relay/internal/connection"
	"github.com/rickgao/chat-relay/internal/message"
)

func main() {
	baseURL := flag.String("url", "ws://localhost:8000", "relay base URL")
	name := flag.String("name", "", "username to join as")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "--name is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := connection.DefaultClientConfig()
	cfg.URL = strings.TrimSuffix(*baseURL, "/") + "/ws/" + url.PathEscape(*name)

	client := connection.NewClient(cfg, logger)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "url", cfg.URL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-client.Errors():
			logger.Error("connection error", "error", err)
			return

		case msg, ok := <-client.Messages():
			if !ok {
				fmt.Println("*** disconnected")
				return
			}
			fmt.Println(render(msg))

		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return
			}
			in, ok := parseLine(line)
			if !ok {
				continue
			}
			if err := client.Send(in); err != nil {
				logger.Error("send failed", "error", err)
				return
			}
		}
	}
}

// parseLine turns console input into a client message.
func parseLine(line string) (message.Inbound, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return message.Inbound{}, false
	}

	rest, ok := strings.CutPrefix(line, "/msg ")
	if !ok {
		return message.Inbound{Message: line}, true
	}

	to, text, _ := strings.Cut(strings.TrimSpace(rest), " ")
	if to == "" || strings.TrimSpace(text) == "" {
		fmt.Fprintln(os.Stderr, "usage: /msg <user> <text>")
		return message.Inbound{}, false
	}
	return message.Inbound{Type: message.TypePrivate, To: to, Message: text}, true
}

func render(msg message.Message) string {
	switch msg.Kind {
	case message.KindPublic:
		return fmt.Sprintf("[%s] <%s> %s", msg.Time, msg.Username, msg.Text)
	case message.KindPrivate:
		return fmt.Sprintf("[%s] *%s* %s", msg.Time, msg.Sender, msg.Text)
	case message.KindPrivateSent:
		return fmt.Sprintf("[%s] -> *%s* %s", msg.Time, msg.Recipient, msg.Text)
	case message.KindUserList:
		return fmt.Sprintf("[%s] online: %s", msg.Time, strings.Join(msg.Users, ", "))
	case message.KindError:
		return fmt.Sprintf("[%s] ! %s", msg.Time, msg.Text)
	default:
		return fmt.Sprintf("[%s] *** %s", msg.Time, msg.Text)
	}
}
