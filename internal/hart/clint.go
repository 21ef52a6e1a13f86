package hart

// CLINT offsets, relative to CLINTBase.
const (
	clintMTimeCmp uint64 = 0x4000
	clintMTime    uint64 = 0xbff8
)

// CLINT is the Core-Local Interruptor: two 64-bit registers, mtime and
// mtimecmp. Every other offset reads as zero and ignores writes.
type CLINT struct {
	MTime    uint64
	MTimeCmp uint64
}

func NewCLINT() *CLINT {
	return &CLINT{}
}

func (c *CLINT) Size() uint64 { return CLINTSize }

func (c *CLINT) Load(offset uint64, size int) (uint64, error) {
	if size != 8 {
		return 0, exception(CauseLoadAccessFault, CLINTBase+offset)
	}
	switch offset {
	case clintMTimeCmp:
		return c.MTimeCmp, nil
	case clintMTime:
		return c.MTime, nil
	default:
		return 0, nil
	}
}

func (c *CLINT) Store(offset uint64, size int, value uint64) error {
	if size != 8 {
		return exception(CauseStoreAccessFault, CLINTBase+offset)
	}
	switch offset {
	case clintMTimeCmp:
		c.MTimeCmp = value
	case clintMTime:
		c.MTime = value
	}
	return nil
}

// Tick advances mtime by one, the way the run loop paces the timer once
// per batch of instructions rather than against a wall clock — there is
// no attempt at cycle accuracy.
func (c *CLINT) Tick() {
	c.MTime++
}
