package hart

// CSR addresses used by this subset of the privileged ISA.
const (
	csrSstatus uint16 = 0x100
	csrSie     uint16 = 0x104
	csrStvec   uint16 = 0x105
	csrSscratch uint16 = 0x140
	csrSepc    uint16 = 0x141
	csrScause  uint16 = 0x142
	csrStval   uint16 = 0x143
	csrSip     uint16 = 0x144
	csrSatp    uint16 = 0x180

	csrMstatus uint16 = 0x300
	csrMedeleg uint16 = 0x302
	csrMideleg uint16 = 0x303
	csrMie     uint16 = 0x304
	csrMtvec   uint16 = 0x305
	csrMscratch uint16 = 0x340
	csrMepc    uint16 = 0x341
	csrMcause  uint16 = 0x342
	csrMtval   uint16 = 0x343
	csrMip     uint16 = 0x344
)

// ReadCSR reads the 4096-slot CSR file at index csr, applying the one
// aliasing rule the spec calls out on read: SIE reads as MIE & MIDELEG.
func (c *CPU) ReadCSR(csr uint16) uint64 {
	if csr == csrSie {
		return c.CSR[csrMie] & c.CSR[csrMideleg]
	}
	return c.CSR[csr]
}

// WriteCSR writes csr := val, applying the SIE aliasing rule on write and
// re-deriving paging state whenever the target is SATP.
func (c *CPU) WriteCSR(csr uint16, val uint64) {
	switch csr {
	case csrSie:
		mideleg := c.CSR[csrMideleg]
		c.CSR[csrMie] = (c.CSR[csrMie] &^ mideleg) | (val & mideleg)
	case csrSatp:
		c.CSR[csrSatp] = val
		c.updatePaging()
	default:
		c.CSR[csr] = val
	}
}

// updatePaging re-derives EnablePaging/PageTable from the current SATP
// value: mode field (bits 63..60) of 8 selects Sv39; any other mode
// disables paging.
func (c *CPU) updatePaging() {
	satp := c.CSR[csrSatp]
	if satp>>60 == 8 {
		c.EnablePaging = true
		c.PageTable = (satp & ((1 << 44) - 1)) * PageSize
	} else {
		c.EnablePaging = false
	}
}
