package hart

import "encoding/binary"

var busEndian = binary.LittleEndian

// Device is a memory-mapped peripheral addressed relative to its own base.
// size is in bytes (1, 2, 4, or 8); an unsupported width is the device's
// own business to reject with a Fault.
type Device interface {
	Load(offset uint64, size int) (uint64, error)
	Store(offset uint64, size int, value uint64) error
	Size() uint64
}

// Guest-physical memory map, per the platform's external interface.
const (
	DRAMBase uint64 = 0x8000_0000
	DRAMSize uint64 = 128 * 1024 * 1024

	CLINTBase uint64 = 0x0200_0000
	CLINTSize uint64 = 0x0001_0000

	PLICBase uint64 = 0x0c00_0000
	PLICSize uint64 = 0x0400_0000

	UARTBase uint64 = 0x1000_0000
	UARTSize uint64 = 0x0000_0100

	VirtIOBase uint64 = 0x1000_1000
	VirtIOSize uint64 = 0x0000_1000

	UARTIRQ   uint64 = 10
	VirtIOIRQ uint64 = 1
)

// mapping pairs a device with the guest-physical range it answers to.
type mapping struct {
	base uint64
	size uint64
	dev  Device
}

// Bus dispatches loads and stores by address range: CLINT, then PLIC, then
// UART, then VirtIO, then DRAM last (DRAM's range starts at DRAMBase and
// spans the DRAM's own size). Anything outside all five ranges faults.
type Bus struct {
	DRAM   *DRAM
	CLINT  *CLINT
	PLIC   *PLIC
	UART   *UART
	VirtIO *VirtIO

	mappings []mapping
}

// NewBus wires the five devices together in dispatch order.
func NewBus(dram *DRAM, clint *CLINT, plic *PLIC, uart *UART, virtio *VirtIO) *Bus {
	b := &Bus{DRAM: dram, CLINT: clint, PLIC: plic, UART: uart, VirtIO: virtio}
	b.mappings = []mapping{
		{CLINTBase, clint.Size(), clint},
		{PLICBase, plic.Size(), plic},
		{UARTBase, uart.Size(), uart},
		{VirtIOBase, virtio.Size(), virtio},
		{DRAMBase, dram.Size(), dram},
	}
	return b
}

func (b *Bus) find(addr uint64) (Device, uint64, bool) {
	for _, m := range b.mappings {
		if addr >= m.base && addr-m.base < m.size {
			return m.dev, addr - m.base, true
		}
	}
	return nil, 0, false
}

// Load dispatches a width-`size` read to whichever device owns addr.
func (b *Bus) Load(addr uint64, size int) (uint64, error) {
	dev, offset, ok := b.find(addr)
	if !ok {
		return 0, exception(CauseLoadAccessFault, addr)
	}
	return dev.Load(offset, size)
}

// Store dispatches a width-`size` write to whichever device owns addr.
func (b *Bus) Store(addr uint64, size int, value uint64) error {
	dev, offset, ok := b.find(addr)
	if !ok {
		return exception(CauseStoreAccessFault, addr)
	}
	return dev.Store(offset, size, value)
}

func (b *Bus) Load8(addr uint64) (uint8, error) {
	v, err := b.Load(addr, 1)
	return uint8(v), err
}

func (b *Bus) Load16(addr uint64) (uint16, error) {
	v, err := b.Load(addr, 2)
	return uint16(v), err
}

func (b *Bus) Load32(addr uint64) (uint32, error) {
	v, err := b.Load(addr, 4)
	return uint32(v), err
}

func (b *Bus) Load64(addr uint64) (uint64, error) {
	return b.Load(addr, 8)
}

func (b *Bus) Store8(addr uint64, value uint8) error {
	return b.Store(addr, 1, uint64(value))
}

func (b *Bus) Store16(addr uint64, value uint16) error {
	return b.Store(addr, 2, uint64(value))
}

func (b *Bus) Store32(addr uint64, value uint32) error {
	return b.Store(addr, 4, uint64(value))
}

func (b *Bus) Store64(addr uint64, value uint64) error {
	return b.Store(addr, 8, value)
}

// DiskAccess runs the VirtIO descriptor-chain pump. It is triggered only
// when the CPU observes VirtIO.IsInterrupting() between instructions; the
// arithmetic below is reproduced exactly as the reference implementation
// has it, including the unaligned 16-bit read at avail+1 (not avail+2) for
// the available-ring index — flagged as likely non-conformant against the
// VirtIO spec, but preserved rather than "corrected" since the guest kernel
// under test was built against this exact behavior.
func (b *Bus) DiskAccess() error {
	v := b.VirtIO
	desc := v.DescAddr()
	avail := desc + 0x40
	used := desc + 0x1000

	offset, err := b.Load16(avail + 1)
	if err != nil {
		return err
	}
	index, err := b.Load16(avail + uint64(offset%8) + 2)
	if err != nil {
		return err
	}

	desc0 := desc + 16*uint64(index)
	addr0, err := b.Load64(desc0)
	if err != nil {
		return err
	}
	next0, err := b.Load16(desc0 + 14)
	if err != nil {
		return err
	}

	desc1 := desc + 16*uint64(next0)
	addr1, err := b.Load64(desc1)
	if err != nil {
		return err
	}
	len1, err := b.Load32(desc1 + 8)
	if err != nil {
		return err
	}
	flags1, err := b.Load16(desc1 + 12)
	if err != nil {
		return err
	}

	sector, err := b.Load64(addr0 + 8)
	if err != nil {
		return err
	}

	if flags1&2 == 0 {
		for i := uint32(0); i < len1; i++ {
			bv, err := b.Load8(addr1 + uint64(i))
			if err != nil {
				return err
			}
			if err := v.WriteDisk(sector*512+uint64(i), bv); err != nil {
				return err
			}
		}
	} else {
		for i := uint32(0); i < len1; i++ {
			bv, err := v.ReadDisk(sector*512 + uint64(i))
			if err != nil {
				return err
			}
			if err := b.Store8(addr1+uint64(i), bv); err != nil {
				return err
			}
		}
	}

	id := v.NextID()
	return b.Store16(used+2, uint16(id%8))
}

// Fetch reads a 4-byte instruction word at addr. A bus-level failure here is
// always reported as an instruction access fault, regardless of which
// device (or lack of one) produced it — matching cpu_fetch folding any
// bus_load failure into INSTRUCTION_ACCESS_FAULT rather than propagating
// the load-access-fault cause the bus itself would raise for a data load.
func (b *Bus) Fetch(addr uint64) (uint32, error) {
	v, err := b.Load32(addr)
	if err != nil {
		return 0, exception(CauseInsnAccessFault, addr)
	}
	return v, nil
}

// LoadBytes copies data into DRAM starting at guest-physical addr, the way
// the kernel image is installed at process start.
func (b *Bus) LoadBytes(addr uint64, data []byte) {
	b.DRAM.loadBytes(addr, data)
}
