package main

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	URL      string `envconfig:"RELAY_URL" default:"ws://localhost:8080/ws"`
	Username string `envconfig:"RELAY_USERNAME" required:"true"`
	// RELAY_COLOURS toggles colorized events
	Colours bool `envconfig:"RELAY_COLOURS" default:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run connects to the relay, prints every event and sends what is typed on stdin.
func run() error {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	color.Enable = config.Colours

	if _, err := url.Parse(config.URL); err != nil {
		return fmt.Errorf("invalid RELAY_URL: %w", err)
	}
	header := http.Header{}
	header.Set("username", config.Username)
	conn, _, err := websocket.DefaultDialer.Dial(config.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", config.URL, err)
	}
	defer conn.Close()

	printer := NewPrinter(os.Stdout)
	printer.Info(fmt.Sprintf("Connected to %s as %s", config.URL, config.Username))
	printer.Info(usage)

	closed := make(chan error, 1)
	go func() {
		for {
			var f incoming
			if err := conn.ReadJSON(&f); err != nil {
				closed <- err
				return
			}
			printer.Print(f)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-signals:
			return closeGracefully(conn)
		case err := <-closed:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)
		case line, ok := <-lines:
			if !ok {
				return closeGracefully(conn)
			}
			out, quit, err := ParseLine(line)
			if err != nil {
				printer.Error(err.Error())
				continue
			}
			if quit {
				return closeGracefully(conn)
			}
			if out == nil {
				continue
			}
			if err := conn.WriteJSON(out); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func closeGracefully(conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
}
