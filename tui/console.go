// Package tui provides the interactive console: a prompt for typing
// transfers, a scrolling exchange history and a live log pane.
package tui

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gammazero/deque"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"golang.org/x/exp/maps"

	"lautenbacher.net/spidev/util"
)

const consoleTitle = " SPI Console "

// TransferFunc executes one full-duplex exchange and returns the
// received bytes.
type TransferFunc func(tx []byte) ([]byte, error)

// SelectFunc steers the chip-select multiplexer to a named target.
type SelectFunc func(name string) error

// Exchange is one completed transfer as shown in the history pane.
type Exchange struct {
	Input   string
	Tx      []byte
	Rx      []byte
	Err     error
	Elapsed time.Duration
}

// Options wires the console to the rest of the application.
type Options struct {
	// Transfer runs one exchange. Required.
	Transfer TransferFunc
	// Presets maps names to hex byte strings usable instead of raw
	// bytes at the prompt.
	Presets map[string]string
	// SelectTarget and Targets enable the :mux command; leave
	// SelectTarget nil when no multiplexer is configured.
	SelectTarget SelectFunc
	Targets      []string
	// DeviceInfo is shown in the header, e.g. "/dev/spidev0.0 @ 1 MHz".
	DeviceInfo string
	// HistorySize bounds the exchange ring.
	HistorySize int
	// Signal receives os.Interrupt on quit and SIGHUP on reload.
	Signal chan os.Signal
}

// Console is the interactive TUI. Create it with NewConsole, hand its
// LogWriter to the logging layer, then call Run on the main goroutine.
type Console struct {
	app     *tview.Application
	input   *tview.InputField
	history *tview.TextView
	logview *tview.TextView

	mu        sync.Mutex
	exchanges deque.Deque[Exchange]

	opts Options
}

// NewConsole builds the console UI without starting it.
func NewConsole(opts Options) *Console {
	if opts.HistorySize < 1 {
		opts.HistorySize = 200
	}
	c := &Console{
		app:  tview.NewApplication(),
		opts: opts,
	}
	c.exchanges.Grow(opts.HistorySize)
	c.setupUI()
	return c
}

// LogWriter returns the writer backing the log pane. Text written to
// it shows up on screen; safe to use from any goroutine.
func (c *Console) LogWriter() io.Writer {
	return tview.ANSIWriter(c.logview)
}

// Run blocks until the console is stopped. It should run on the main
// goroutine, the way tview expects.
func (c *Console) Run() error {
	return c.app.Run()
}

// Stop tears the console down. Safe to call from any goroutine.
func (c *Console) Stop() {
	c.app.Stop()
}

func (c *Console) setupUI() {
	var intro strings.Builder
	intro.WriteString(fmt.Sprintf("Connected to [blue]%s[-]\n", c.opts.DeviceInfo))
	intro.WriteString("Type hex bytes ([blue]9F 00 00[-]) or a preset name and hit Enter.\n")
	intro.WriteString("Commands: [blue]:mux <target>[-]  [blue]:presets[-]  [blue]:quit[-]   Keys: [#ff0000]Ctrl-C[-] quit, [#ff0000]Ctrl-R[-] reload config")

	header := tview.NewTextView()
	header.SetBorder(true).SetTitle(consoleTitle).SetTitleColor(tcell.ColorLightBlue)
	header.SetText(intro.String())
	header.SetTextAlign(tview.AlignCenter)
	header.SetDynamicColors(true)

	c.history = tview.NewTextView()
	c.history.SetDynamicColors(true)
	c.history.SetScrollable(true)
	c.history.SetBorder(true).SetTitle(" Exchanges ")
	c.history.SetChangedFunc(func() { c.app.Draw() })

	c.logview = tview.NewTextView()
	c.logview.SetDynamicColors(true)
	c.logview.SetScrollable(true)
	c.logview.SetBorder(true).SetTitle(" Log ")
	c.logview.SetChangedFunc(func() {
		c.logview.ScrollToEnd()
		c.app.Draw()
	})

	c.input = tview.NewInputField()
	c.input.SetLabel("spi> ")
	c.input.SetFieldBackgroundColor(tcell.ColorBlack)
	c.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := strings.TrimSpace(c.input.GetText())
		c.input.SetText("")
		if line == "" {
			return
		}
		go c.handleLine(line)
	})

	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.AddItem(header, 5, 0, false)
	layout.AddItem(c.history, 0, 3, false)
	layout.AddItem(c.logview, 0, 1, false)
	layout.AddItem(c.input, 1, 0, true)

	c.app.SetRoot(layout, true).SetFocus(c.input)
	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			c.app.Stop()
			c.opts.Signal <- os.Interrupt
			return nil
		case tcell.KeyCtrlR:
			c.app.Stop()
			c.opts.Signal <- syscall.SIGHUP
			return nil
		}
		return event
	})
}

// handleLine processes one prompt line off the UI goroutine.
func (c *Console) handleLine(line string) {
	if strings.HasPrefix(line, ":") {
		c.handleCommand(line)
		return
	}

	tx, err := c.resolveInput(line)
	if err != nil {
		c.appendExchange(Exchange{Input: line, Err: err})
		return
	}

	start := time.Now()
	rx, err := c.opts.Transfer(tx)
	c.appendExchange(Exchange{
		Input:   line,
		Tx:      tx,
		Rx:      rx,
		Err:     err,
		Elapsed: time.Since(start),
	})
}

func (c *Console) handleCommand(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":quit", ":q":
		c.app.Stop()
		c.opts.Signal <- os.Interrupt
	case ":presets":
		c.printPresets()
	case ":mux":
		if c.opts.SelectTarget == nil {
			slog.Warn("No multiplexer configured")
			return
		}
		if len(fields) != 2 {
			slog.Warn("Usage: :mux <target>", "targets", strings.Join(c.opts.Targets, ", "))
			return
		}
		if err := c.opts.SelectTarget(fields[1]); err != nil {
			slog.Warn("Multiplexer selection failed", "error", err)
			return
		}
		slog.Info("Multiplexer target selected", "target", fields[1])
	default:
		slog.Warn("Unknown command", "command", fields[0])
	}
}

func (c *Console) printPresets() {
	if len(c.opts.Presets) == 0 {
		slog.Info("No presets configured")
		return
	}
	for _, name := range sortedKeys(c.opts.Presets) {
		slog.Info("Preset", "name", name, "bytes", c.opts.Presets[name])
	}
}

// resolveInput turns a prompt line into transmit bytes. A line
// matching a preset name expands to the preset; anything else must
// parse as hex bytes.
func (c *Console) resolveInput(line string) ([]byte, error) {
	if preset, ok := c.opts.Presets[line]; ok {
		tx, err := util.ParseBytes(preset)
		if err != nil {
			return nil, fmt.Errorf("preset %q is invalid: %w", line, err)
		}
		return tx, nil
	}
	tx, err := util.ParseBytes(line)
	if err != nil {
		return nil, fmt.Errorf("not a preset name and %w", err)
	}
	if len(tx) == 0 {
		return nil, fmt.Errorf("nothing to send")
	}
	return tx, nil
}

// appendExchange records the exchange and redraws the history pane.
func (c *Console) appendExchange(e Exchange) {
	c.mu.Lock()
	if c.exchanges.Len() == c.opts.HistorySize {
		c.exchanges.PopFront()
	}
	c.exchanges.PushBack(e)
	text := c.renderHistory()
	c.mu.Unlock()

	c.app.QueueUpdateDraw(func() {
		c.history.SetText(text)
		c.history.ScrollToEnd()
	})
}

// renderHistory must be called with the mutex held.
func (c *Console) renderHistory() string {
	var sb strings.Builder
	for i := range c.exchanges.Len() {
		sb.WriteString(formatExchange(c.exchanges.At(i)))
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Exchanges returns a snapshot of the history ring, oldest first.
func (c *Console) Exchanges() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Exchange, c.exchanges.Len())
	for i := range c.exchanges.Len() {
		out[i] = c.exchanges.At(i)
	}
	return out
}

func formatExchange(e Exchange) string {
	if e.Err != nil {
		return fmt.Sprintf("[yellow]%s[-]\n  [red]error:[-] %v", e.Input, e.Err)
	}
	return fmt.Sprintf("[yellow]%s[-]\n  [blue]tx:[-] %s\n  [green]rx:[-] %s  [gray](%s)[-]",
		e.Input, util.FormatBytes(e.Tx), util.FormatBytes(e.Rx), e.Elapsed.Round(time.Microsecond))
}

func sortedKeys(m map[string]string) []string {
	keys := maps.Keys(m)
	sort.Strings(keys)
	return keys
}
