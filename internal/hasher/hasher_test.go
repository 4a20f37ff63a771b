package hasher

import (
	"strings"
	"testing"
)

func TestHashStringPure(t *testing.T) {
	if HashString("foo") != HashString("foo") {
		t.Fatal("HashString is not pure")
	}
}

func TestHashStringNotConstant(t *testing.T) {
	if HashString("foo") == HashString("bar") {
		t.Fatal("HashString collided on distinct inputs")
	}
}

func TestHashBytesPure(t *testing.T) {
	a, err := HashBytes(strings.NewReader("foo"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashBytes(strings.NewReader("foo"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("HashBytes is not pure")
	}
}

func TestHashBytesNotConstant(t *testing.T) {
	a, err := HashBytes(strings.NewReader("foo"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashBytes(strings.NewReader("bar"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("HashBytes collided on distinct inputs")
	}
}

func TestCombinePure(t *testing.T) {
	if Combine("foo", "bar") != Combine("foo", "bar") {
		t.Fatal("Combine is not pure")
	}
}

func TestCombineFirstDifferent(t *testing.T) {
	if Combine("foo", "bar") == Combine("baz", "bar") {
		t.Fatal("Combine ignored its first argument")
	}
}

func TestCombineSecondDifferent(t *testing.T) {
	if Combine("foo", "bar") == Combine("foo", "baz") {
		t.Fatal("Combine ignored its second argument")
	}
}

func TestCombineConcatenationAmbiguity(t *testing.T) {
	if Combine("foo", "bar") == Combine("foob", "ar") {
		t.Fatal("Combine is ambiguous across the split point")
	}
}
