package hart

import "testing"

// TestSIEAliasing covers spec's CSR aliasing invariant: SIE reads and
// writes pass through MIE, masked by MIDELEG — bits MIDELEG doesn't
// delegate to supervisor mode are invisible to SIE in both directions.
func TestSIEAliasing(t *testing.T) {
	c := NewCPU()

	c.CSR[csrMideleg] = mipSSIP | mipSTIP // delegate only software+timer
	c.CSR[csrMie] = mipSSIP               // only the delegated bit is set

	if got, want := c.ReadCSR(csrSie), uint64(mipSSIP); got != want {
		t.Errorf("ReadCSR(sie) = 0x%x, want 0x%x (masked by mideleg)", got, want)
	}

	// val sets both a delegated bit (STIP) and a non-delegated one (SEIP);
	// only the delegated bit may land in mie.
	c.WriteCSR(csrSie, mipSTIP|mipSEIP)

	if want := mipSTIP; c.CSR[csrMie] != want {
		t.Errorf("mie after sie write = 0x%x, want 0x%x", c.CSR[csrMie], want)
	}
	if c.CSR[csrMie]&mipSEIP != 0 {
		t.Error("writing sie must not be able to set a non-delegated mie bit")
	}
}

func TestSatpDisablesPagingOnNonSv39Mode(t *testing.T) {
	c := NewCPU()
	c.WriteCSR(csrSatp, (uint64(8)<<60)|0x80001)
	if !c.EnablePaging {
		t.Fatal("expected paging enabled after mode-8 satp write")
	}

	c.WriteCSR(csrSatp, 0) // mode 0 (bare) disables paging
	if c.EnablePaging {
		t.Error("EnablePaging should be false after a mode-0 satp write")
	}
}
