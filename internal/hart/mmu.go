package hart

// PTE flag bits.
const (
	pteV uint64 = 1 << 0
	pteR uint64 = 1 << 1
	pteW uint64 = 1 << 2
	pteX uint64 = 1 << 3
)

// Translate walks the Sv39 page table rooted at cpu.PageTable for vaddr,
// returning the physical address or a page fault of the given class.
// Identity-maps when paging is disabled.
func (c *CPU) Translate(vaddr uint64, faultCause uint64, bus *Bus) (uint64, error) {
	if !c.EnablePaging {
		return vaddr, nil
	}

	vpn := [3]uint64{
		(vaddr >> 12) & 0x1ff,
		(vaddr >> 21) & 0x1ff,
		(vaddr >> 30) & 0x1ff,
	}
	offset := vaddr & 0xfff

	a := c.PageTable
	i := 2
	var pte uint64
	for {
		addr := a + vpn[i]*8
		v, err := bus.Load64(addr)
		if err != nil {
			return 0, exception(faultCause, vaddr)
		}
		pte = v

		valid := pte&pteV != 0
		if !valid || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, exception(faultCause, vaddr)
		}

		if pte&(pteR|pteX) != 0 {
			break
		}

		a = ((pte >> 10) & 0xFFF_FFFF_FFFF) * PageSize
		i--
		if i < 0 {
			return 0, exception(faultCause, vaddr)
		}
	}

	ppn2 := (pte >> 28) & 0x3FF_FFFF
	ppn1 := (pte >> 19) & 0x1FF

	switch i {
	case 0:
		return ((pte>>10)&0xFFF_FFFF_FFFF)<<12 | offset, nil
	case 1: // 2 MiB superpage
		return (ppn2 << 30) | (ppn1 << 21) | (vpn[0] << 12) | offset, nil
	default: // i == 2, 1 GiB superpage
		return (ppn2 << 30) | (vpn[1] << 21) | (vpn[0] << 12) | offset, nil
	}
}
