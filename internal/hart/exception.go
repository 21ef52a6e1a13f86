// Package hart implements a single RISC-V RV64IMA hardware thread: the
// integer interpreter, the Sv39 page walker, the trap/interrupt machinery,
// and the small set of memory-mapped devices needed to boot an xv6-style
// kernel on a QEMU virt-shaped platform.
package hart

import "fmt"

// Exception causes, per the RISC-V privileged spec's mcause/scause encoding.
const (
	CauseInsnAddrMisaligned  uint64 = 0
	CauseInsnAccessFault     uint64 = 1
	CauseIllegalInsn         uint64 = 2
	CauseBreakpoint          uint64 = 3
	CauseLoadAddrMisaligned  uint64 = 4
	CauseLoadAccessFault     uint64 = 5
	CauseStoreAddrMisaligned uint64 = 6
	CauseStoreAccessFault    uint64 = 7
	CauseEcallFromU          uint64 = 8
	CauseEcallFromS          uint64 = 9
	CauseEcallFromM          uint64 = 11
	CauseInsnPageFault       uint64 = 12
	CauseLoadPageFault       uint64 = 13
	CauseStorePageFault      uint64 = 15
)

// Interrupt causes, as raw codes (TakeTrap adds bit 63 when it delivers one).
const (
	IntSSoftware uint64 = 1
	IntMSoftware uint64 = 3
	IntSTimer    uint64 = 5
	IntMTimer    uint64 = 7
	IntSExternal uint64 = 9
	IntMExternal uint64 = 11
)

const interruptBit = uint64(1) << 63

// Fault is the error value every core operation (dram, bus, MMU, fetch,
// execute) returns up the call stack instead of panicking. The trap engine
// is the only consumer that interprets Cause/Tval; everything else just
// propagates it.
type Fault struct {
	Cause uint64
	Tval  uint64
}

func (f Fault) Error() string {
	if f.Cause&interruptBit != 0 {
		return fmt.Sprintf("interrupt: code=%d", f.Cause&^interruptBit)
	}
	return fmt.Sprintf("exception: cause=%d tval=0x%x", f.Cause, f.Tval)
}

// exception builds an exception Fault (interrupt bit clear).
func exception(cause, tval uint64) error {
	return Fault{Cause: cause, Tval: tval}
}

// fatalExceptions terminate the emulator once the trap has been taken, per
// the error handling design: the fault PC is still reported and the trap
// is still delivered, but the run loop does not continue after it.
var fatalExceptions = map[uint64]bool{
	CauseInsnAddrMisaligned:  true,
	CauseInsnAccessFault:     true,
	CauseLoadAccessFault:     true,
	CauseStoreAddrMisaligned: true,
	CauseStoreAccessFault:    true,
}

// IsFatal reports whether an exception cause (never an interrupt) should
// terminate the emulator after its trap is taken.
func IsFatal(cause uint64) bool {
	return fatalExceptions[cause]
}
