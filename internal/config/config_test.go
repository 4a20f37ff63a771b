package config

import "testing"

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse([]byte(EmptyConfig))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("got %+v, want %+v", cfg, Default())
	}
}

func TestParseEmptyBytes(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("got %+v, want %+v", cfg, Default())
	}
}

func TestParseNonempty(t *testing.T) {
	doc := `
engine: podman
repo: foo
read-local-cache: false
write-local-cache: false
read-remote-cache: true
write-remote-cache: true
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	want := Config{
		Engine:           "podman",
		Repo:             "foo",
		ReadLocalCache:   false,
		WriteLocalCache:  false,
		ReadRemoteCache:  true,
		WriteRemoteCache: true,
	}
	if cfg != want {
		t.Errorf("got %+v, want %+v", cfg, want)
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	if _, err := Parse([]byte("bogus-field: true")); err == nil {
		t.Error("expected an error for an unknown field")
	}
}
