package container

import "testing"

func TestRandomTagHasPrefix(t *testing.T) {
	tag := RandomTag("toast-")
	if len(tag) <= len("toast-") {
		t.Errorf("tag %q looks too short", tag)
	}
	if tag[:len("toast-")] != "toast-" {
		t.Errorf("tag %q does not start with the prefix", tag)
	}
}

func TestRandomTagVaries(t *testing.T) {
	a := RandomTag("toast-")
	b := RandomTag("toast-")
	if a == b {
		t.Error("RandomTag produced the same tag twice in a row")
	}
}

func TestValidateTagAcceptsValidReference(t *testing.T) {
	if err := ValidateTag("toast-abc123:latest"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateTagRejectsInvalidReference(t *testing.T) {
	if err := ValidateTag("  not a valid tag  "); err == nil {
		t.Error("expected an error for an invalid tag")
	}
}
