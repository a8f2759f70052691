package main

import (
	"fmt"
	"strings"
)

const usage = `Commands:
  /create <room> [password]   create a room and join it
  /join <room> [password]     join a room
  /leave <room>               leave a room
  /room <room> <text>         send to a room
  /quit                       disconnect
  anything else               send to everyone`

type outgoing struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// ParseLine turns one line of input into a frame. A nil frame without error means nothing to send.
func ParseLine(line string) (*outgoing, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return &outgoing{Event: "message:send", Data: map[string]any{"message": line}}, false, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return nil, true, nil
	case "/create", "/join":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, false, fmt.Errorf("usage: %s <room> [password]", fields[0])
		}
		data := map[string]any{"roomId": fields[1], "password": ""}
		if len(fields) == 3 {
			data["password"] = fields[2]
		}
		event := "room:join"
		if fields[0] == "/create" {
			event = "room:create"
		}
		return &outgoing{Event: event, Data: data}, false, nil
	case "/leave":
		if len(fields) != 2 {
			return nil, false, fmt.Errorf("usage: /leave <room>")
		}
		return &outgoing{Event: "room:leave", Data: map[string]any{"roomId": fields[1]}}, false, nil
	case "/room":
		if len(fields) < 3 {
			return nil, false, fmt.Errorf("usage: /room <room> <text>")
		}
		text := strings.TrimSpace(strings.TrimPrefix(line[len("/room"):], " "))
		text = strings.TrimSpace(strings.TrimPrefix(text, fields[1]))
		return &outgoing{Event: "message:send", Data: map[string]any{"message": text, "roomId": fields[1]}}, false, nil
	default:
		return nil, false, fmt.Errorf("unknown command %s", fields[0])
	}
}
