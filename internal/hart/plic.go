package hart

// PLIC offsets, relative to PLICBase.
const (
	plicPending   uint64 = 0x1000
	plicSEnable   uint64 = 0x2080
	plicSPriority uint64 = 0x20_1000
	plicSClaim    uint64 = 0x20_1004
)

// PLIC is a minimal Platform-Level Interrupt Controller: four 32-bit
// registers, no priority arbitration. sclaim is written by the bus
// directly (see Machine's interrupt poll) to the asserting device's IRQ
// number; the guest reads it back to identify the source.
type PLIC struct {
	Pending   uint32
	SEnable   uint32
	SPriority uint32
	SClaim    uint32
}

func NewPLIC() *PLIC {
	return &PLIC{}
}

func (p *PLIC) Size() uint64 { return PLICSize }

func (p *PLIC) Load(offset uint64, size int) (uint64, error) {
	if size != 4 {
		return 0, exception(CauseLoadAccessFault, PLICBase+offset)
	}
	switch offset {
	case plicPending:
		return uint64(p.Pending), nil
	case plicSEnable:
		return uint64(p.SEnable), nil
	case plicSPriority:
		return uint64(p.SPriority), nil
	case plicSClaim:
		return uint64(p.SClaim), nil
	default:
		return 0, nil
	}
}

func (p *PLIC) Store(offset uint64, size int, value uint64) error {
	if size != 4 {
		return exception(CauseStoreAccessFault, PLICBase+offset)
	}
	switch offset {
	case plicPending:
		p.Pending = uint32(value)
	case plicSEnable:
		p.SEnable = uint32(value)
	case plicSPriority:
		p.SPriority = uint32(value)
	case plicSClaim:
		p.SClaim = uint32(value)
	}
	return nil
}
