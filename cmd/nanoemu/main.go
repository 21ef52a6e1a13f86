package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"nanoemu/internal/config"
	"nanoemu/internal/hart"
	"nanoemu/internal/monitor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "nanoemu: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a YAML config file")
	monitorFlag := flag.Bool("monitor", false, "Mirror the guest console and dump it on exit")
	trace := flag.Bool("trace", false, "Verbose (debug-level) logging")
	mem := flag.Uint64("mem", hart.DRAMSize, "DRAM size in bytes")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <kernel-binary> [<disk-image>]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 && len(args) != 2 {
		flag.Usage()
		return fmt.Errorf("expected 1 or 2 positional arguments, got %d", len(args))
	}

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "trace":
			cfg.Trace = *trace
		case "monitor":
			cfg.Monitor = *monitorFlag
		}
	})

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFor(cfg.Trace),
	})))

	kernel := readFileOrWarn(args[0])
	var disk []byte
	if len(args) == 2 {
		disk = readDiskOrWarn(args[1])
	}

	var mon *monitor.Monitor
	var stdout io.Writer = os.Stdout
	if cfg.Monitor {
		mon = monitor.New()
		stdout = io.MultiWriter(os.Stdout, mon)
	}

	m := hart.NewMachine(*mem, stdout, disk)
	m.LoadBytes(hart.DRAMBase, kernel)
	if len(cfg.Breakpoints) > 0 {
		m.SetBreakpoints(cfg.Breakpoints)
	}

	slog.Info("machine ready", "dram_bytes", *mem, "kernel_bytes", len(kernel), "disk_bytes", len(disk))

	restore := enableRawMode()
	defer restore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.UART.Run(gctx, int(os.Stdin.Fd()))
	})
	g.Go(func() error {
		defer cancel()
		return m.Run(gctx, 1000)
	})

	runErr := g.Wait()

	dumpRegisters(os.Stdout, m.CPU)
	fmt.Fprintln(os.Stdout, "----------------------------------------------------------------------------------------------------------------------")
	dumpCSRs(os.Stdout, m.CPU)

	if mon != nil {
		writeMonitorDump(cfg.MonitorDump, mon.Dump())
	}

	switch {
	case runErr == nil, errors.Is(runErr, context.Canceled):
	case errors.Is(runErr, hart.ErrBreakpoint):
		slog.Info("stopped at breakpoint", "error", runErr)
	default:
		slog.Error("machine stopped", "error", runErr)
	}
	return nil
}

// writeMonitorDump writes the monitor's final screen to path, or to stdout
// (alongside the register/CSR dump) when path is empty.
func writeMonitorDump(path, screen string) {
	if path == "" {
		fmt.Fprintln(os.Stdout, "----------------------------------------------------------------------------------------------------------------------")
		fmt.Fprint(os.Stdout, screen)
		return
	}
	if err := os.WriteFile(path, []byte(screen), 0o644); err != nil {
		slog.Error("write monitor dump", "path", path, "error", err)
	}
}

func levelFor(trace bool) slog.Level {
	if trace {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// readFileOrWarn reports an fopen-equivalent failure but returns a nil
// slice rather than aborting — the original C printed the error and kept
// going with whatever cpu_new made of a NULL buffer, and this repo
// preserves that rather than exiting early (see spec's open question on
// CLI startup behavior).
func readFileOrWarn(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return nil
	}
	return data
}

func readDiskOrWarn(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	var size int64 = -1
	if err == nil {
		size = info.Size()
	}

	bar := progressbar.DefaultBytes(size, fmt.Sprintf("load %s", path))
	defer bar.Close()

	buf := &writeBuffer{}
	if _, err := io.Copy(io.MultiWriter(buf, bar), f); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return nil
	}
	return buf.data
}

type writeBuffer struct{ data []byte }

func (w *writeBuffer) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

// enableRawMode puts stdin into raw mode when it is the controlling
// terminal, so the guest console driver sees bytes one at a time with no
// host-side line editing or echo. It returns a no-op restorer when stdin
// isn't a terminal (e.g. piped input in tests).
func enableRawMode() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		slog.Warn("enable raw mode", "error", err)
		return func() {}
	}
	return func() { _ = term.Restore(fd, state) }
}

func dumpRegisters(w io.Writer, cpu *hart.CPU) {
	for i := 0; i < 32; i += 4 {
		fmt.Fprintf(w, "x%-2d=0x%016x  x%-2d=0x%016x  x%-2d=0x%016x  x%-2d=0x%016x\n",
			i, cpu.X[i], i+1, cpu.X[i+1], i+2, cpu.X[i+2], i+3, cpu.X[i+3])
	}
	fmt.Fprintf(w, "pc =0x%016x\n", cpu.PC)
}

func dumpCSRs(w io.Writer, cpu *hart.CPU) {
	named := []struct {
		name string
		addr uint16
	}{
		{"mstatus", 0x300}, {"mtvec", 0x305}, {"mepc", 0x341}, {"mcause", 0x342},
		{"mtval", 0x343}, {"mie", 0x304}, {"mip", 0x344}, {"medeleg", 0x302}, {"mideleg", 0x303},
		{"sstatus", 0x100}, {"stvec", 0x105}, {"sepc", 0x141}, {"scause", 0x142},
		{"stval", 0x143}, {"satp", 0x180},
	}
	for _, c := range named {
		fmt.Fprintf(w, "%-8s=0x%016x\n", c.name, cpu.CSR[c.addr])
	}
}
