package hart

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"
)

// UART register offsets, relative to UARTBase.
const (
	uartRHR uint64 = 0 // also THR on store
	uartLCR uint64 = 3
	uartLSR uint64 = 5
)

// LSR bits.
const (
	uartLSRRX uint8 = 1 << 0 // data available
	uartLSRTX uint8 = 1 << 5 // transmit holding register empty, always set
)

// UART is a minimal 16550-like console: a 256-byte register window shared
// between the CPU thread and a single background reader goroutine, guarded
// by one mutex and signaled by one condition variable — the only shared
// mutable state in the emulator (§5).
type UART struct {
	mu           sync.Mutex
	cond         *sync.Cond
	regs         [256]byte
	interrupting bool

	output io.Writer
}

// NewUART creates a UART whose THR writes go to output (typically stdout).
func NewUART(output io.Writer) *UART {
	u := &UART{output: output}
	u.cond = sync.NewCond(&u.mu)
	u.regs[uartLSR] = uartLSRTX
	return u
}

func (u *UART) Size() uint64 { return UARTSize }

func (u *UART) Load(offset uint64, size int) (uint64, error) {
	if size != 1 {
		return 0, exception(CauseLoadAccessFault, UARTBase+offset)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if offset == uartRHR {
		u.cond.Broadcast()
		u.regs[uartLSR] &^= uartLSRRX
	}
	return uint64(u.regs[offset]), nil
}

func (u *UART) Store(offset uint64, size int, value uint64) error {
	if size != 1 {
		return exception(CauseStoreAccessFault, UARTBase+offset)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if offset == uartRHR { // THR shares the RHR offset
		if u.output != nil {
			u.output.Write([]byte{byte(value)})
		}
		return nil
	}
	u.regs[offset] = byte(value)
	return nil
}

// IsInterrupting atomically reads and clears the interrupting flag.
func (u *UART) IsInterrupting() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	pending := u.interrupting
	u.interrupting = false
	return pending
}

// deposit places a received byte at RHR, waiting first for any previously
// deposited byte to be consumed by a load from RHR.
func (u *UART) deposit(b byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for u.regs[uartLSR]&uartLSRRX != 0 {
		u.cond.Wait()
	}
	u.regs[uartRHR] = b
	u.interrupting = true
	u.regs[uartLSR] |= uartLSRRX
}

// Run is the UART's background producer: it polls fd with a 200 ms timeout,
// reads one byte at a time and deposits it, checking ctx between polls.
// Unlike the reference implementation's reader thread, which has no EOF
// handling and spins forever once stdin closes, this one stops: it returns
// nil on read EOF, ctx.Err() once ctx is cancelled, and a wrapped error for
// any other poll or read failure (EINTR and EAGAIN are retried) — see the
// open question on reader termination.
func (u *UART) Run(ctx context.Context, fd int) error {
	var buf [1]byte
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pollFds, 200)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("uart: poll stdin: %w", err)
		}
		if n == 0 {
			continue
		}

		read, err := unix.Read(fd, buf[:])
		if err != nil {
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			return fmt.Errorf("uart: read stdin: %w", err)
		}
		if read == 0 {
			return nil
		}

		u.deposit(buf[0])
	}
}
