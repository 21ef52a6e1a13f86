// Package monitor mirrors the guest console into a headless virtual
// terminal so a fatal-exit dump can show the guest's last screen next to
// the register/CSR dump. It is entirely supplemental: nothing in
// internal/hart depends on it, and a monitor failure never affects the
// emulator's core result.
package monitor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/vt"
)

const (
	cols = 80
	rows = 24
)

// Monitor feeds bytes the guest writes to UART THR through a vt emulator
// so Dump can render the final screen as plain text.
type Monitor struct {
	mu  sync.Mutex
	emu *vt.SafeEmulator
}

// New creates a Monitor with an 80x24 screen, the UART's implicit size
// (the core has no notion of terminal geometry; this is a display-only
// convention for the dump, not something the guest negotiates).
func New() *Monitor {
	m := &Monitor{emu: vt.NewSafeEmulator(cols, rows)}
	disableQueryReplies(m.emu)
	return m
}

// disableQueryReplies swallows the status/identification queries a guest
// console might emit (device status report, device attributes): the
// monitor has no channel back to the guest to deliver a reply on, so
// letting the emulator try would just be wasted work.
func disableQueryReplies(emu *vt.SafeEmulator) {
	emu.RegisterCsiHandler('n', func(params ansi.Params) bool {
		n, _, ok := params.Param(0, 1)
		return ok && (n == 5 || n == 6)
	})
	emu.RegisterCsiHandler('c', func(params ansi.Params) bool {
		n, _, _ := params.Param(0, 0)
		return n == 0
	})
}

// Write feeds p (a copy of bytes already sent to the real stdout sink)
// into the virtual screen. It satisfies io.Writer so it can be attached
// alongside the real sink with io.MultiWriter.
func (m *Monitor) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emu.Write(p)
}

// Dump renders the current screen contents as plain text, one line per
// row, trailing blanks on each line trimmed.
func (m *Monitor) Dump() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	for y := 0; y < rows; y++ {
		var line strings.Builder
		for x := 0; x < cols; {
			cell := m.emu.CellAt(x, y)
			w := 1
			content := " "
			if cell != nil {
				content = cell.Content
				if cell.Width > 1 {
					w = cell.Width
				}
			}
			line.WriteString(content)
			x += w
		}
		fmt.Fprintln(&b, strings.TrimRight(line.String(), " "))
	}
	return b.String()
}
