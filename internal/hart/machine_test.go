package hart

import (
	"bytes"
	"errors"
	"testing"
)

func loadCode(m *Machine, code []uint32) {
	for i, insn := range code {
		m.Bus.Store32(DRAMBase+uint64(i*4), insn)
	}
}

// encI/encS assemble I-type and S-type instruction words directly from the
// RISC-V field layout, so width-table tests below don't carry hand-computed
// hex literals for every combination of store/load width.
func encI(opcode, funct3, rdReg, rs1Reg uint32, imm uint32) uint32 {
	return (imm&0xfff)<<20 | (rs1Reg&0x1f)<<15 | (funct3&0x7)<<12 | (rdReg&0x1f)<<7 | (opcode & 0x7f)
}

func encS(opcode, funct3, rs1Reg, rs2Reg uint32, imm uint32) uint32 {
	return ((imm>>5)&0x7f)<<25 | (rs2Reg&0x1f)<<20 | (rs1Reg&0x1f)<<15 | (funct3&0x7)<<12 | (imm&0x1f)<<7 | (opcode & 0x7f)
}

func TestResetState(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)

	if m.CPU.PC != DRAMBase {
		t.Errorf("PC = 0x%x, want 0x%x", m.CPU.PC, DRAMBase)
	}
	if m.CPU.X[2] != 0x88000000 {
		t.Errorf("sp = 0x%x, want 0x88000000", m.CPU.X[2])
	}
	if m.CPU.Priv != PrivMachine {
		t.Errorf("Priv = %d, want PrivMachine", m.CPU.Priv)
	}
	if m.CPU.EnablePaging {
		t.Error("EnablePaging should start false")
	}
	if m.CPU.X[0] != 0 {
		t.Error("x0 must read zero")
	}
}

func TestAddiSignExtend(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0xfff00293, // addi x5, x0, -1
	})
	if err := m.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.CPU.X[5] != 0xffffffffffffffff {
		t.Errorf("x5 = 0x%x, want all-ones", m.CPU.X[5])
	}
}

func TestLui(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0xfffff337, // lui x6, 0xFFFFF
	})
	if err := m.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.CPU.X[6] != 0xFFFFFFFFFFFFF000 {
		t.Errorf("x6 = 0x%x, want 0xFFFFFFFFFFFFF000", m.CPU.X[6])
	}
}

func TestJal(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0x008000ef, // jal x1, +8
	})
	if err := m.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.CPU.X[1] != DRAMBase+4 {
		t.Errorf("x1 = 0x%x, want 0x%x", m.CPU.X[1], DRAMBase+4)
	}
	if m.CPU.PC != DRAMBase+8 {
		t.Errorf("PC = 0x%x, want 0x%x", m.CPU.PC, DRAMBase+8)
	}
}

func TestBranchTaken(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0x00000663, // beq x0, x0, +12
	})
	if err := m.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.CPU.PC != DRAMBase+12 {
		t.Errorf("PC = 0x%x, want 0x%x", m.CPU.PC, DRAMBase+12)
	}
}

func TestStoreLoadRoundTrip(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0x00000517, // auipc x10, 0        -- x10 = 0x80000000, this instruction's own PC
		0x12a52523, // sw x10, 298(x10)   -- arbitrary offset within DRAM
		0x12a56583, // lwu x11, 298(x10)  -- zero-extends, so bit 31 of x10 round-trips
	})
	for i := 0; i < 3; i++ {
		if err := m.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if m.CPU.X[11] != m.CPU.X[10] {
		t.Errorf("x11 = 0x%x, want 0x%x (round-trip of x10)", m.CPU.X[11], m.CPU.X[10])
	}
}

// TestStoreLoadRoundTripAllWidths covers spec's "for all w in {8,16,32,64}"
// round-trip invariant directly, one store/load pair per width using an
// unsigned load so truncation, not sign extension, is what's under test.
func TestStoreLoadRoundTripAllWidths(t *testing.T) {
	cases := []struct {
		name    string
		storeF3 uint32
		loadF3  uint32
		value   uint64
		mask    uint64
	}{
		{"byte", 0b000, 0b100, 0x42, 0xff},
		{"halfword", 0b001, 0b101, 0x1234, 0xffff},
		{"word", 0b010, 0b110, 0x12345678, 0xffffffff},
		{"doubleword", 0b011, 0b011, 0x1122334455667788, ^uint64(0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
			m.CPU.X[10] = DRAMBase + 0x1000 // scratch address, away from code
			m.CPU.X[11] = tc.value

			code := []uint32{
				encS(opStore, tc.storeF3, 10, 11, 0), // store x11 at 0(x10)
				encI(opLoad, tc.loadF3, 12, 10, 0),   // load into x12 from 0(x10)
			}
			loadCode(m, code)
			for i := range code {
				if err := m.Step(); err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
			}

			if want := tc.value & tc.mask; m.CPU.X[12] != want {
				t.Errorf("x12 = 0x%x, want 0x%x", m.CPU.X[12], want)
			}
		})
	}
}

func TestBreakpoint(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0x00000013, // addi x0, x0, 0 (nop)
		0x00000013, // nop
	})
	m.SetBreakpoints([]uint64{DRAMBase + 4})

	if err := m.Step(); err != nil {
		t.Fatalf("first step should not hit the breakpoint: %v", err)
	}
	if err := m.Step(); !errors.Is(err, ErrBreakpoint) {
		t.Fatalf("Step at breakpoint = %v, want ErrBreakpoint", err)
	}
}

func TestEcallFromMachine(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0x00000073, // ecall
	})
	if err := m.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if m.CPU.CSR[csrMcause] != CauseEcallFromM {
		t.Errorf("mcause = %d, want %d", m.CPU.CSR[csrMcause], CauseEcallFromM)
	}
	if m.CPU.CSR[csrMepc] != DRAMBase {
		t.Errorf("mepc = 0x%x, want 0x%x", m.CPU.CSR[csrMepc], DRAMBase)
	}
	wantPC := m.CPU.CSR[csrMtvec] &^ 1
	if m.CPU.PC != wantPC {
		t.Errorf("PC = 0x%x, want 0x%x", m.CPU.PC, wantPC)
	}
	if m.CPU.Priv != PrivMachine {
		t.Error("ecall from M-mode must stay in M-mode")
	}
}

func TestSatpEnablesPaging(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	root := uint64(0x80001)
	satp := (uint64(8) << 60) | (root & ((1 << 44) - 1))
	m.CPU.X[5] = satp

	loadCode(m, []uint32{
		0x18029073, // csrrw x0, satp, x5
	})
	if err := m.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	if !m.CPU.EnablePaging {
		t.Error("EnablePaging should be true after writing a mode-8 satp")
	}
	if m.CPU.PageTable != root*PageSize {
		t.Errorf("PageTable = 0x%x, want 0x%x", m.CPU.PageTable, root*PageSize)
	}
}

func TestTrapInvariants(t *testing.T) {
	m := NewMachine(DRAMSize, &bytes.Buffer{}, nil)
	loadCode(m, []uint32{
		0x00000073, // ecall
	})
	priorIE := m.CPU.CSR[csrMstatus]&statusMIE != 0

	if err := m.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	status := m.CPU.CSR[csrMstatus]
	if m.CPU.CSR[csrMepc]&1 != 0 {
		t.Error("mepc must be 2-byte aligned")
	}
	if m.CPU.CSR[csrMcause]&interruptBit != 0 {
		t.Error("a synchronous exception must not set the interrupt bit")
	}
	if status&statusMIE != 0 {
		t.Error("MIE must be cleared on trap entry")
	}
	gotPIE := status&statusMPIE != 0
	if gotPIE != priorIE {
		t.Errorf("MPIE = %v, want prior MIE = %v", gotPIE, priorIE)
	}
}
