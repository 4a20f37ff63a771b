package cachekey

import (
	"testing"

	"github.com/banksean/toast/internal/recipe"
)

func strPtr(s string) *string { return &s }

func TestNextNoopPassesThroughUnchanged(t *testing.T) {
	task := &recipe.Task{}
	got := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "", nil, "grault")
	if got != "corge" {
		t.Errorf("got %q, want %q", got, "corge")
	}
}

func TestNextPure(t *testing.T) {
	task := &recipe.Task{
		Environment: map[string]*string{"foo": nil},
		InputPaths:  []string{"flob"},
		Command:     "echo wibble",
	}
	env := map[string]string{"foo": "qux"}
	a := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", env, "grault")
	b := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", env, "grault")
	if a != b {
		t.Errorf("Next is not pure: %q vs %q", a, b)
	}
}

func TestNextVariesWithPreviousKey(t *testing.T) {
	task := &recipe.Task{Command: "echo wibble"}
	a := Next("foo", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", nil, "grault")
	b := Next("bar", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", nil, "grault")
	if a == b {
		t.Error("Next ignored the previous key")
	}
}

func TestNextEnvOrderInvariant(t *testing.T) {
	task1 := &recipe.Task{
		Environment: map[string]*string{"foo": nil, "bar": nil},
		Command:     "echo wibble",
	}
	task2 := &recipe.Task{
		Environment: map[string]*string{"bar": nil, "foo": nil},
		Command:     "echo wibble",
	}
	env := map[string]string{"foo": "qux", "bar": "fum"}
	a := Next("corge", task1, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", env, "grault")
	b := Next("corge", task2, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", env, "grault")
	if a != b {
		t.Errorf("Next depends on map iteration order: %q vs %q", a, b)
	}
}

func TestNextVariesWithEnvKeys(t *testing.T) {
	task1 := &recipe.Task{Environment: map[string]*string{"foo": nil}, Command: "echo wibble"}
	task2 := &recipe.Task{Environment: map[string]*string{"bar": nil}, Command: "echo wibble"}
	env := map[string]string{"foo": "qux", "bar": "fum"}
	a := Next("corge", task1, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", env, "grault")
	b := Next("corge", task2, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", env, "grault")
	if a == b {
		t.Error("Next ignored env variable names")
	}
}

func TestNextVariesWithEnvValues(t *testing.T) {
	task := &recipe.Task{Environment: map[string]*string{"foo": nil}, Command: "echo wibble"}
	a := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", map[string]string{"foo": "bar"}, "grault")
	b := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", map[string]string{"foo": "baz"}, "grault")
	if a == b {
		t.Error("Next ignored env variable values")
	}
}

func TestNextVariesWithInputArchiveHash(t *testing.T) {
	task := &recipe.Task{InputPaths: []string{"flob"}, Command: "echo wibble"}
	a := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", nil, "foo")
	b := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo wibble", nil, "bar")
	if a == b {
		t.Error("Next ignored the input archive hash")
	}
}

func TestNextVariesWithLocation(t *testing.T) {
	task := &recipe.Task{Command: "echo wibble"}
	a := Next("corge", task, "/foo", recipe.DefaultUser, "echo wibble", nil, "grault")
	b := Next("corge", task, "/bar", recipe.DefaultUser, "echo wibble", nil, "grault")
	if a == b {
		t.Error("Next ignored location")
	}
}

func TestNextVariesWithUser(t *testing.T) {
	task := &recipe.Task{Command: "echo wibble"}
	a := Next("corge", task, recipe.DefaultLocation, "foo", "echo wibble", nil, "grault")
	b := Next("corge", task, recipe.DefaultLocation, "bar", "echo wibble", nil, "grault")
	if a == b {
		t.Error("Next ignored user")
	}
}

func TestNextVariesWithCommand(t *testing.T) {
	task := &recipe.Task{Command: "echo foo"}
	a := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo foo", nil, "grault")
	b := Next("corge", task, recipe.DefaultLocation, recipe.DefaultUser, "echo bar", nil, "grault")
	if a == b {
		t.Error("Next ignored command")
	}
}
