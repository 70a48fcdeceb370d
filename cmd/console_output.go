package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ConsoleWriter renders zerolog events as short colored lines prefixed with the project and target
// they belong to.
type ConsoleWriter struct {
	Out io.Writer

	buffer strings.Builder
	lock   sync.Mutex
}

func NewConsoleWriter(out io.Writer) *ConsoleWriter {
	return &ConsoleWriter{Out: out}
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return n, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	w.buffer.Reset()
	if project, ok := evt["project"].(string); ok {
		w.buffer.WriteString("[bold]" + project)
		if target, ok := evt["target"].(string); ok {
			w.buffer.WriteString("." + target)
		}
		w.buffer.WriteString(":[reset] ")
	}

	switch evt["level"] {
	case "fatal":
		fallthrough
	case "error":
		w.buffer.WriteString("[red]")
	case "warn":
		w.buffer.WriteString("[yellow]")
	case "debug":
		fallthrough
	case "trace":
		w.buffer.WriteString("[blue]")
	default:
		if evt["command"] == true {
			w.buffer.WriteString("[dark_gray]$ ")
		} else {
			w.buffer.WriteString("[green]")
		}
	}

	if evt["level"] == "error" {
		w.buffer.WriteString("Error: ")
	}

	// the message is appended after colorizing since commands may contain brackets
	line := colorstring.Color(w.buffer.String())
	msg, _ := evt["message"].(string)
	line += msg

	if errorDetails, ok := evt["error"].(string); ok {
		line += "\n" + errorDetails
	}

	if os.Getenv("MONO_DEBUG") != "" {
		line += "\n"
		for name, value := range evt {
			line += fmt.Sprintf("  %s: %+v\n", name, value)
		}
	}

	line += colorstring.Color("[reset]") + "\n"
	if _, err = io.WriteString(w.Out, line); err != nil {
		return 0, err
	}
	return len(p), nil
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv("MONO_DEBUG") != "")
	}
}
