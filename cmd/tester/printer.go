package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

type incoming struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Printer renders relay events. Rosters are printed as tables.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

func (p *Printer) Info(text string) {
	p.line(color.New(color.FgCyan).Render(text))
}

func (p *Printer) Error(text string) {
	p.line(color.New(color.FgRed, color.OpBold).Render(text))
}

func (p *Printer) Print(f incoming) {
	switch f.Event {
	case "user:list", "room:users":
		var names []string
		if err := json.Unmarshal(f.Data, &names); err != nil {
			p.Error(fmt.Sprintf("bad %s payload: %v", f.Event, err))
			return
		}
		p.roster(f.Event, names)
	case "message:receive":
		var m struct {
			ClientID string `json:"clientId"`
			Username string `json:"username"`
			Message  string `json:"message"`
		}
		if err := json.Unmarshal(f.Data, &m); err != nil {
			p.Error(fmt.Sprintf("bad message payload: %v", err))
			return
		}
		p.line(fmt.Sprintf("%s %s", color.New(color.FgGreen, color.OpBold).Render(m.Username+":"), m.Message))
	case "error":
		var e struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(f.Data, &e)
		p.Error("error: " + e.Message)
	default:
		var u struct {
			Username string `json:"username"`
		}
		_ = json.Unmarshal(f.Data, &u)
		p.line(color.New(color.BgBlack, color.FgYellow).Render(fmt.Sprintf("[%s] %s", f.Event, u.Username)))
	}
}

func (p *Printer) roster(event string, names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"#", event})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, name := range names {
		table.Append([]string{fmt.Sprint(i + 1), name})
	}
	table.Render()
}

func (p *Printer) line(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}
