package hart

// VirtIO-MMIO register offsets, relative to VirtIOBase.
const (
	virtioMagic           uint64 = 0x000
	virtioVersion         uint64 = 0x004
	virtioDeviceID        uint64 = 0x008
	virtioVendorID        uint64 = 0x00c
	virtioDeviceFeatures  uint64 = 0x010
	virtioDriverFeatures  uint64 = 0x020
	virtioGuestPageSize   uint64 = 0x028
	virtioQueueSel        uint64 = 0x030
	virtioQueueNumMax     uint64 = 0x034
	virtioQueueNum        uint64 = 0x038
	virtioQueuePFN        uint64 = 0x040
	virtioQueueNotify     uint64 = 0x050
	virtioStatus          uint64 = 0x070
)

// noPendingNotify is the "no pending notify" sentinel for queue_notify: a
// write that sets it to anything else arms the next disk-access pump, and
// IsInterrupting resets it back to this value once observed.
const noPendingNotify uint32 = 0xFFFF_FFFF

// VirtIO is a block-only VirtIO-MMIO device: the MMIO control registers
// plus the backing disk bytes. The queue layout it exposes (descriptor
// ring + available ring + used ring at queue_pfn*page_size) is interpreted
// by Bus.DiskAccess, not here.
type VirtIO struct {
	id             uint64
	driverFeatures uint32
	pageSize       uint32
	queueSel       uint32
	queueNum       uint32
	queuePFN       uint32
	queueNotify    uint32
	status         uint32

	disk []byte
}

// NewVirtIO wraps disk as the device's backing store. A nil/empty disk is
// valid — the device still answers identity reads, it simply has nothing
// to pump.
func NewVirtIO(disk []byte) *VirtIO {
	return &VirtIO{queueNotify: noPendingNotify, disk: disk}
}

func (v *VirtIO) Size() uint64 { return VirtIOSize }

func (v *VirtIO) Load(offset uint64, size int) (uint64, error) {
	if size != 4 {
		return 0, exception(CauseLoadAccessFault, VirtIOBase+offset)
	}
	switch offset {
	case virtioMagic:
		return 0x74726976, nil
	case virtioVersion:
		return 1, nil
	case virtioDeviceID:
		return 2, nil
	case virtioVendorID:
		return 0x554d4551, nil
	case virtioDeviceFeatures:
		return 0, nil
	case virtioDriverFeatures:
		return uint64(v.driverFeatures), nil
	case virtioQueueNumMax:
		return 8, nil
	case virtioQueuePFN:
		return uint64(v.queuePFN), nil
	case virtioStatus:
		return uint64(v.status), nil
	default:
		return 0, nil
	}
}

func (v *VirtIO) Store(offset uint64, size int, value uint64) error {
	if size != 4 {
		return exception(CauseStoreAccessFault, VirtIOBase+offset)
	}
	switch offset {
	case virtioDeviceFeatures:
		v.driverFeatures = uint32(value)
	case virtioGuestPageSize:
		v.pageSize = uint32(value)
	case virtioQueueSel:
		v.queueSel = uint32(value)
	case virtioQueueNum:
		v.queueNum = uint32(value)
	case virtioQueuePFN:
		v.queuePFN = uint32(value)
	case virtioQueueNotify:
		v.queueNotify = uint32(value)
	case virtioStatus:
		v.status = uint32(value)
	}
	return nil
}

// IsInterrupting returns true exactly once per guest notify: if
// queue_notify isn't the sentinel, it resets to the sentinel and reports
// true; otherwise false.
func (v *VirtIO) IsInterrupting() bool {
	if v.queueNotify != noPendingNotify {
		v.queueNotify = noPendingNotify
		return true
	}
	return false
}

// DescAddr is the guest-physical base of the descriptor ring.
func (v *VirtIO) DescAddr() uint64 {
	return uint64(v.queuePFN) * uint64(v.pageSize)
}

// NextID increments and returns the device's used-ring id counter.
func (v *VirtIO) NextID() uint64 {
	v.id++
	return v.id
}

func (v *VirtIO) ReadDisk(addr uint64) (uint8, error) {
	if addr >= uint64(len(v.disk)) {
		return 0, exception(CauseLoadAccessFault, addr)
	}
	return v.disk[addr], nil
}

func (v *VirtIO) WriteDisk(addr uint64, value uint8) error {
	if addr >= uint64(len(v.disk)) {
		return exception(CauseStoreAccessFault, addr)
	}
	v.disk[addr] = value
	return nil
}
