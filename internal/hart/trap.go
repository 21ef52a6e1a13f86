package hart

// trapRegs names the five CSR addresses and the status-register bit
// layout a mode's trap delivery writes through — the two delivery paths
// (Supervisor, Machine) are structurally identical except for the MPP
// special case below, so one helper parameterized by this tuple replaces
// both (§9 trap-class deduplication).
type trapRegs struct {
	epc, cause, tval, tvec, status uint16
	ieBit, pieBit, ppMask          uint64
	ppShift                        uint
	clearPPOnly                    bool // Machine: MPP always clears to 0, never encodes prior mode
}

var supervisorTrap = trapRegs{
	epc: csrSepc, cause: csrScause, tval: csrStval, tvec: csrStvec, status: csrSstatus,
	ieBit: statusSIE, pieBit: statusSPIE, ppMask: statusSPP, ppShift: 8,
}

var machineTrap = trapRegs{
	epc: csrMepc, cause: csrMcause, tval: csrMtval, tvec: csrMtvec, status: csrMstatus,
	ieBit: statusMIE, pieBit: statusMPIE, ppMask: statusMPP, ppShift: statusMPPShift,
	clearPPOnly: true,
}

// TakeTrap redirects for either an exception (isInterrupt=false, code is
// the exception cause) or an interrupt (isInterrupt=true, code is the
// interrupt number without the high bit). It always computes the saved
// EPC as the CPU's current PC minus 4, on the premise that PC has already
// been advanced to its post-instruction value by the caller — true for
// both a normal post-execute PC and a post-fetch-failure PC, so fetch
// faults, execute faults, and interrupts all go through the exact same
// arithmetic, matching the reference implementation's single
// cpu_take_trap doing `pc - 4` unconditionally.
//
// Delegation is decided against MEDELEG for both exceptions and
// interrupts — the architecture specifies MIDELEG for interrupts, but the
// reference implementation checks MEDELEG unconditionally and this repo
// reproduces that rather than "fixing" it.
func (c *CPU) TakeTrap(code uint64, isInterrupt bool) {
	var cause uint64
	if isInterrupt {
		cause = interruptBit | code
	} else {
		cause = code
	}

	faultPC := c.PC - 4
	prevMode := c.Priv
	delegate := prevMode <= PrivSupervisor && (c.CSR[csrMedeleg]>>code)&1 != 0

	regs := machineTrap
	mode := PrivMachine
	if delegate {
		regs = supervisorTrap
		mode = PrivSupervisor
	}

	status := c.CSR[regs.status]
	prevIE := status&regs.ieBit != 0

	c.CSR[regs.epc] = faultPC &^ 1
	c.CSR[regs.cause] = cause
	c.CSR[regs.tval] = 0

	if prevIE {
		status |= regs.pieBit
	} else {
		status &^= regs.pieBit
	}
	status &^= regs.ieBit

	status &^= regs.ppMask
	if !regs.clearPPOnly && prevMode != PrivUser {
		status |= regs.ppMask
	}
	// clearPPOnly (Machine): MPP is left cleared regardless of prevMode,
	// matching cpu_take_trap's write sequence verbatim (§9).

	c.CSR[regs.status] = status
	c.Priv = mode

	vectored := c.CSR[regs.tvec]&1 == 1
	base := c.CSR[regs.tvec] &^ 1
	if vectored && isInterrupt {
		c.PC = base + 4*code
	} else {
		c.PC = base
	}
}
