package hart

// Opcodes (low 7 bits of the instruction word).
const (
	opLoad    uint32 = 0b0000011
	opFence   uint32 = 0b0001111
	opOpImm   uint32 = 0b0010011
	opAuipc   uint32 = 0b0010111
	opOpImm32 uint32 = 0b0011011
	opStore   uint32 = 0b0100011
	opAMO     uint32 = 0b0101111
	opOp      uint32 = 0b0110011
	opLui     uint32 = 0b0110111
	opOp32    uint32 = 0b0111011
	opBranch  uint32 = 0b1100011
	opJalr    uint32 = 0b1100111
	opJal     uint32 = 0b1101111
	opSystem  uint32 = 0b1110011
)

func opcode(insn uint32) uint32 { return insn & 0x7f }
func rd(insn uint32) uint32     { return (insn >> 7) & 0x1f }
func funct3(insn uint32) uint32 { return (insn >> 12) & 0x7 }
func rs1(insn uint32) uint32    { return (insn >> 15) & 0x1f }
func rs2(insn uint32) uint32    { return (insn >> 20) & 0x1f }
func funct7(insn uint32) uint32 { return (insn >> 25) & 0x7f }

func immI(insn uint32) uint64 { return signExtend(uint64(insn>>20), 12) }

func immS(insn uint32) uint64 {
	imm := (insn >> 7) & 0x1f
	imm |= ((insn >> 25) & 0x7f) << 5
	return signExtend(uint64(imm), 12)
}

func immB(insn uint32) uint64 {
	imm := ((insn >> 8) & 0xf) << 1
	imm |= ((insn >> 25) & 0x3f) << 5
	imm |= ((insn >> 7) & 0x1) << 11
	imm |= ((insn >> 31) & 0x1) << 12
	return signExtend(uint64(imm), 13)
}

func immU(insn uint32) uint64 { return signExtend(uint64(insn&0xfffff000), 32) }

func immJ(insn uint32) uint64 {
	imm := ((insn >> 21) & 0x3ff) << 1
	imm |= ((insn >> 20) & 0x1) << 11
	imm |= ((insn >> 12) & 0xff) << 12
	imm |= ((insn >> 31) & 0x1) << 20
	return signExtend(uint64(imm), 21)
}

// memAccess holds the load/store callbacks Execute routes every memory
// operation through, so the caller (Machine) can interpose Sv39
// translation without this file needing to know about the MMU.
type memAccess struct {
	load8   func(uint64) (uint8, error)
	load16  func(uint64) (uint16, error)
	load32  func(uint64) (uint32, error)
	load64  func(uint64) (uint64, error)
	store8  func(uint64, uint8) error
	store16 func(uint64, uint16) error
	store32 func(uint64, uint32) error
	store64 func(uint64, uint64) error
}

// Execute decodes and runs insn. By the time this is called, PC has
// already been advanced by 4 past the instruction's own address (the
// fetch/decode/execute loop does that before executing); AUIPC, JAL, and
// taken branches all compute their target as PC + imm - 4 for exactly
// that reason, reproducing the reference implementation's convention
// rather than threading a separate "address of this instruction" value
// through the interpreter.
func (c *CPU) Execute(insn uint32, mem memAccess) error {
	c.X[0] = 0

	switch opcode(insn) {
	case opLui:
		c.WriteReg(rd(insn), immU(insn))
	case opAuipc:
		c.WriteReg(rd(insn), c.PC+immU(insn)-4)
	case opJal:
		c.WriteReg(rd(insn), c.PC)
		c.PC += immJ(insn) - 4
	case opJalr:
		t := c.PC
		target := (c.ReadReg(rs1(insn)) + immI(insn)) &^ 1
		c.PC = target
		c.WriteReg(rd(insn), t)
	case opBranch:
		return c.execBranch(insn)
	case opLoad:
		return c.execLoad(insn, mem)
	case opStore:
		return c.execStore(insn, mem)
	case opOpImm:
		return c.execOpImm(insn)
	case opOpImm32:
		return c.execOpImm32(insn)
	case opOp:
		return c.execOp(insn)
	case opOp32:
		return c.execOp32(insn)
	case opAMO:
		return c.execAMO(insn, mem)
	case opFence:
		if funct3(insn) != 0 {
			return exception(CauseIllegalInsn, uint64(insn))
		}
	case opSystem:
		return c.execSystem(insn)
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}
	return nil
}

func (c *CPU) execBranch(insn uint32) error {
	r1, r2 := c.ReadReg(rs1(insn)), c.ReadReg(rs2(insn))

	var taken bool
	switch funct3(insn) {
	case 0b000:
		taken = r1 == r2
	case 0b001:
		taken = r1 != r2
	case 0b100:
		taken = int64(r1) < int64(r2)
	case 0b101:
		taken = int64(r1) >= int64(r2)
	case 0b110:
		taken = r1 < r2
	case 0b111:
		taken = r1 >= r2
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	if taken {
		c.PC += immB(insn) - 4
	}
	return nil
}

func (c *CPU) execLoad(insn uint32, mem memAccess) error {
	addr := c.ReadReg(rs1(insn)) + immI(insn)

	var val uint64
	switch funct3(insn) {
	case 0b000: // lb
		v, err := mem.load8(addr)
		if err != nil {
			return err
		}
		val = uint64(int8(v))
	case 0b001: // lh
		v, err := mem.load16(addr)
		if err != nil {
			return err
		}
		val = uint64(int16(v))
	case 0b010: // lw
		v, err := mem.load32(addr)
		if err != nil {
			return err
		}
		val = uint64(int32(v))
	case 0b011: // ld
		v, err := mem.load64(addr)
		if err != nil {
			return err
		}
		val = v
	case 0b100: // lbu
		v, err := mem.load8(addr)
		if err != nil {
			return err
		}
		val = uint64(v)
	case 0b101: // lhu
		v, err := mem.load16(addr)
		if err != nil {
			return err
		}
		val = uint64(v)
	case 0b110: // lwu
		v, err := mem.load32(addr)
		if err != nil {
			return err
		}
		val = uint64(v)
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	c.WriteReg(rd(insn), val)
	return nil
}

func (c *CPU) execStore(insn uint32, mem memAccess) error {
	addr := c.ReadReg(rs1(insn)) + immS(insn)
	val := c.ReadReg(rs2(insn))

	switch funct3(insn) {
	case 0b000:
		return mem.store8(addr, uint8(val))
	case 0b001:
		return mem.store16(addr, uint16(val))
	case 0b010:
		return mem.store32(addr, uint32(val))
	case 0b011:
		return mem.store64(addr, val)
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}
}

func (c *CPU) execOpImm(insn uint32) error {
	r1 := c.ReadReg(rs1(insn))
	imm := immI(insn)
	sh := (insn >> 20) & 0x3f

	var val uint64
	switch funct3(insn) {
	case 0b000: // addi
		val = r1 + imm
	case 0b001: // slli
		val = r1 << sh
	case 0b010: // slti
		if int64(r1) < int64(imm) {
			val = 1
		}
	case 0b011: // sltiu
		if r1 < imm {
			val = 1
		}
	case 0b100: // xori
		val = r1 ^ imm
	case 0b101: // srli/srai
		if funct7(insn)>>1 == 0x10 {
			val = uint64(int64(r1) >> sh)
		} else {
			val = r1 >> sh
		}
	case 0b110: // ori
		val = r1 | imm
	case 0b111: // andi
		val = r1 & imm
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	c.WriteReg(rd(insn), val)
	return nil
}

func (c *CPU) execOpImm32(insn uint32) error {
	r1 := uint32(c.ReadReg(rs1(insn)))
	sh := (insn >> 20) & 0x1f

	var val int32
	switch funct3(insn) {
	case 0b000: // addiw
		val = int32(r1) + int32(immI(insn))
	case 0b001: // slliw
		val = int32(r1 << sh)
	case 0b101: // srliw/sraiw
		if funct7(insn)>>1 == 0x10 {
			val = int32(r1) >> sh
		} else {
			val = int32(r1 >> sh)
		}
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	c.WriteReg(rd(insn), signExtend32(uint32(val)))
	return nil
}

func (c *CPU) execOp(insn uint32) error {
	r1, r2 := c.ReadReg(rs1(insn)), c.ReadReg(rs2(insn))
	f7 := funct7(insn)

	if f7 == 0x01 && funct3(insn) == 0 { // mul
		c.WriteReg(rd(insn), r1*r2)
		return nil
	}

	var val uint64
	switch funct3(insn) {
	case 0b000: // add/sub
		if f7 == 0x20 {
			val = r1 - r2
		} else {
			val = r1 + r2
		}
	case 0b001: // sll
		val = r1 << (r2 & 0x3f)
	case 0b010: // slt
		if int64(r1) < int64(r2) {
			val = 1
		}
	case 0b011: // sltu
		if r1 < r2 {
			val = 1
		}
	case 0b100: // xor
		val = r1 ^ r2
	case 0b101: // srl/sra
		if f7 == 0x20 {
			val = uint64(int64(r1) >> (r2 & 0x3f))
		} else {
			val = r1 >> (r2 & 0x3f)
		}
	case 0b110: // or
		val = r1 | r2
	case 0b111: // and
		val = r1 & r2
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	c.WriteReg(rd(insn), val)
	return nil
}

func (c *CPU) execOp32(insn uint32) error {
	r1, r2 := uint32(c.ReadReg(rs1(insn))), uint32(c.ReadReg(rs2(insn)))
	f7 := funct7(insn)
	f3 := funct3(insn)

	if f7 == 0x01 { // M-extension subset: divu, remuw
		switch f3 {
		case 0b101: // divu
			var q uint32
			if r2 == 0 {
				q = ^uint32(0)
			} else {
				q = r1 / r2
			}
			c.WriteReg(rd(insn), signExtend32(q))
			return nil
		case 0b111: // remuw
			var rem uint32
			if r2 == 0 {
				rem = r1
			} else {
				rem = r1 % r2
			}
			c.WriteReg(rd(insn), signExtend32(rem))
			return nil
		default:
			return exception(CauseIllegalInsn, uint64(insn))
		}
	}

	var val int32
	switch f3 {
	case 0b000: // addw/subw
		if f7 == 0x20 {
			val = int32(r1) - int32(r2)
		} else {
			val = int32(r1) + int32(r2)
		}
	case 0b001: // sllw
		val = int32(r1 << (r2 & 0x1f))
	case 0b101: // srlw/sraw
		if f7 == 0x20 {
			val = int32(r1) >> (r2 & 0x1f)
		} else {
			val = int32(r1 >> (r2 & 0x1f))
		}
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	c.WriteReg(rd(insn), signExtend32(uint32(val)))
	return nil
}

// execAMO implements the required AMO subset: amoadd.{w,d}, amoswap.{w,d}.
func (c *CPU) execAMO(insn uint32, mem memAccess) error {
	addr := c.ReadReg(rs1(insn))
	funct5 := insn >> 27

	is64 := funct3(insn) == 0b011
	switch funct5 {
	case 0b00000, 0b00001: // amoadd, amoswap
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	rs2val := c.ReadReg(rs2(insn))

	if is64 {
		old, err := mem.load64(addr)
		if err != nil {
			return err
		}
		var newVal uint64
		if funct5 == 0b00001 {
			newVal = rs2val
		} else {
			newVal = old + rs2val
		}
		if err := mem.store64(addr, newVal); err != nil {
			return err
		}
		c.WriteReg(rd(insn), old)
	} else {
		old, err := mem.load32(addr)
		if err != nil {
			return err
		}
		var newVal uint32
		if funct5 == 0b00001 {
			newVal = uint32(rs2val)
		} else {
			newVal = old + uint32(rs2val)
		}
		if err := mem.store32(addr, newVal); err != nil {
			return err
		}
		c.WriteReg(rd(insn), signExtend32(old))
	}
	return nil
}

func (c *CPU) execSystem(insn uint32) error {
	f3 := funct3(insn)
	csr := uint16(insn >> 20)
	rdReg, rs1Reg := rd(insn), rs1(insn)

	if f3 == 0 {
		switch {
		case insn == 0x00000073: // ecall
			return c.handleEcall()
		case insn == 0x00100073: // ebreak
			return exception(CauseBreakpoint, c.PC)
		case rs2(insn) == 0x02 && funct7(insn) == 0x08: // sret
			c.handleSret()
			return nil
		case rs2(insn) == 0x02 && funct7(insn) == 0x18: // mret
			c.handleMret()
			return nil
		case funct7(insn) == 0x09: // sfence.vma
			return nil
		default:
			return exception(CauseIllegalInsn, uint64(insn))
		}
	}

	var rs1Val uint64
	if f3 >= 5 {
		rs1Val = uint64(rs1Reg) // csrrwi/csrrsi/csrrci: 5-bit immediate in the rs1 slot
	} else {
		rs1Val = c.ReadReg(rs1Reg)
	}

	csrVal := c.ReadCSR(csr)

	var writeVal uint64
	doWrite := true
	switch f3 & 3 {
	case 1: // csrrw(i)
		writeVal = rs1Val
	case 2: // csrrs(i)
		writeVal = csrVal | rs1Val
		doWrite = rs1Reg != 0
	case 3: // csrrc(i)
		writeVal = csrVal &^ rs1Val
		doWrite = rs1Reg != 0
	default:
		return exception(CauseIllegalInsn, uint64(insn))
	}

	if doWrite {
		c.WriteCSR(csr, writeVal)
	}
	c.WriteReg(rdReg, csrVal)
	return nil
}

func (c *CPU) handleEcall() error {
	switch c.Priv {
	case PrivUser:
		return exception(CauseEcallFromU, 0)
	case PrivSupervisor:
		return exception(CauseEcallFromS, 0)
	default:
		return exception(CauseEcallFromM, 0)
	}
}

func (c *CPU) handleSret() {
	c.PC = c.CSR[csrSepc]
	if (c.CSR[csrSstatus]>>8)&1 == 1 {
		c.Priv = PrivSupervisor
	} else {
		c.Priv = PrivUser
	}

	sstatus := c.CSR[csrSstatus]
	if sstatus&statusSPIE != 0 {
		sstatus |= statusSIE
	} else {
		sstatus &^= statusSIE
	}
	sstatus |= statusSPIE
	sstatus &^= statusSPP
	c.CSR[csrSstatus] = sstatus
}

func (c *CPU) handleMret() {
	c.PC = c.CSR[csrMepc]
	mpp := (c.CSR[csrMstatus] >> statusMPPShift) & 3
	c.Priv = uint8(mpp)

	mstatus := c.CSR[csrMstatus]
	if mstatus&statusMPIE != 0 {
		mstatus |= statusMIE
	} else {
		mstatus &^= statusMIE
	}
	mstatus |= statusMPIE
	mstatus &^= statusMPP
	c.CSR[csrMstatus] = mstatus
}
