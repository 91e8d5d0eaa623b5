package fingerprint

import (
	"testing"
)

func TestSum_Deterministic(t *testing.T) {
	trace := []byte("goroutine 1 [running]:\nmain.handle(0x0)\n\t/app/main.go:42")

	a := Sum(trace)
	b := Sum(trace)

	if a != b {
		t.Errorf("Sum() not deterministic: %s != %s", a, b)
	}
}

func TestSum_DistinguishesInputs(t *testing.T) {
	a := SumString("nil pointer dereference at handler.go:10")
	b := SumString("nil pointer dereference at handler.go:11")

	if a == b {
		t.Error("distinct diagnostics produced the same fingerprint")
	}
}

func TestSum_SingleByteDifference(t *testing.T) {
	base := []byte("index out of range [3] with length 3")
	flipped := make([]byte, len(base))
	copy(flipped, base)
	flipped[0] ^= 1

	if Sum(base) == Sum(flipped) {
		t.Error("single differing byte produced the same fingerprint")
	}
}

func TestSum_EmptyInput(t *testing.T) {
	// Empty diagnostics still get a stable, non-zero key.
	var zero Fingerprint
	if Sum(nil) == zero {
		t.Error("Sum(nil) returned the zero fingerprint")
	}
	if Sum(nil) != Sum([]byte{}) {
		t.Error("Sum(nil) != Sum(empty)")
	}
}

func TestHex(t *testing.T) {
	fp := SumString("x")

	h := fp.Hex()
	if len(h) != Size*2 {
		t.Errorf("Hex() length = %d, want %d", len(h), Size*2)
	}
	if h != fp.String() {
		t.Error("String() should equal Hex()")
	}
}

func TestBytes(t *testing.T) {
	fp := SumString("x")
	if len(fp.Bytes()) != Size {
		t.Errorf("Bytes() length = %d, want %d", len(fp.Bytes()), Size)
	}
}
