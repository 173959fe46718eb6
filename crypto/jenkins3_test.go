package crypto

import "testing"

func TestHashLittleVector(t *testing.T) {
	got := HashLittle([]byte("Four score and seven years ago"), 0)
	if got != 0x17770551 {
		t.Fatalf("HashLittle = 0x%08x, want 0x17770551", got)
	}
}

func TestHashLittle2EmptyVector(t *testing.T) {
	pc, pb := HashLittle2([]byte(""), 0xdeadbeef, 0xdeadbeef)
	if pc != 0x9c093ccd || pb != 0xbd5b7dde {
		t.Fatalf("HashLittle2 = (0x%08x, 0x%08x), want (0x9c093ccd, 0xbd5b7dde)", pc, pb)
	}
}
