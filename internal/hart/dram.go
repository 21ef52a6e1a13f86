package hart

// DRAM is the guest's flat physical memory: a single byte slice mapped at
// DRAMBase, accessed little-endian at widths {8,16,32,64}.
type DRAM struct {
	data []byte
}

// NewDRAM allocates a zeroed DRAM of the given size.
func NewDRAM(size uint64) *DRAM {
	return &DRAM{data: make([]byte, size)}
}

func (d *DRAM) Size() uint64 { return uint64(len(d.data)) }

func (d *DRAM) Load(offset uint64, size int) (uint64, error) {
	if !d.inRange(offset, size) {
		return 0, exception(CauseLoadAccessFault, DRAMBase+offset)
	}
	switch size {
	case 1:
		return uint64(d.data[offset]), nil
	case 2:
		return uint64(busEndian.Uint16(d.data[offset:])), nil
	case 4:
		return uint64(busEndian.Uint32(d.data[offset:])), nil
	case 8:
		return busEndian.Uint64(d.data[offset:]), nil
	default:
		return 0, exception(CauseLoadAccessFault, DRAMBase+offset)
	}
}

func (d *DRAM) Store(offset uint64, size int, value uint64) error {
	if !d.inRange(offset, size) {
		return exception(CauseStoreAccessFault, DRAMBase+offset)
	}
	switch size {
	case 1:
		d.data[offset] = byte(value)
	case 2:
		busEndian.PutUint16(d.data[offset:], uint16(value))
	case 4:
		busEndian.PutUint32(d.data[offset:], uint32(value))
	case 8:
		busEndian.PutUint64(d.data[offset:], value)
	default:
		return exception(CauseStoreAccessFault, DRAMBase+offset)
	}
	return nil
}

func (d *DRAM) inRange(offset uint64, size int) bool {
	return size > 0 && offset+uint64(size) <= uint64(len(d.data))
}

// loadBytes copies data into DRAM starting at guest-physical addr, used to
// install the kernel image at boot. Bytes beyond the buffer are silently
// dropped rather than faulted, matching the host-side loader's contract
// rather than the guest-facing load/store contract above.
func (d *DRAM) loadBytes(addr uint64, data []byte) {
	if addr < DRAMBase {
		return
	}
	offset := addr - DRAMBase
	if offset >= uint64(len(d.data)) {
		return
	}
	copy(d.data[offset:], data)
}
