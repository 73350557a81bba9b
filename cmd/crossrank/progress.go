package main

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/crossrank/crossrank/internal/run"
)

// progressMode selects how run progress reaches the terminal.
type progressMode string

const (
	progressPlain progressMode = "plain"
	progressJSON  progressMode = "json"
)

// resolveProgressMode maps the --progress flag to a concrete mode. Auto
// picks plain on a TTY and json when output is piped.
func resolveProgressMode(flag string) (progressMode, error) {
	switch flag {
	case "auto":
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return progressPlain, nil
		}
		return progressJSON, nil
	case "plain":
		return progressPlain, nil
	case "json":
		return progressJSON, nil
	default:
		return "", fmt.Errorf("unknown progress mode %q (auto|plain|json)", flag)
	}
}

// progressSink prints run events to stdout. It implements run.Sink.
type progressSink struct {
	mode progressMode
	enc  *json.Encoder
}

func newProgressSink(mode progressMode) *progressSink {
	return &progressSink{mode: mode, enc: json.NewEncoder(os.Stdout)}
}

// Publish renders one event. JSON mode emits every event as a line;
// plain mode prints stage starts and failures, leaving the completion
// summary to the command.
func (p *progressSink) Publish(ev run.Event) {
	if p.mode == progressJSON {
		p.enc.Encode(ev)
		return
	}

	switch ev.Status {
	case "started":
		if ev.Rows > 0 {
			fmt.Printf("⚡ %s (%d rows x %d assets)\n", ev.Stage, ev.Rows, ev.Cols)
			return
		}
		fmt.Printf("⚡ %s\n", ev.Stage)
	case "failed":
		fmt.Printf("❌ %s failed: %s\n", ev.Stage, ev.Message)
	}
}
