// Package recipe holds the Toast recipe document model: parsing,
// default inheritance, and the invariant checks that must hold before a
// recipe may be scheduled or executed.
package recipe

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLocation is the recipe-level location used when none is given.
const DefaultLocation = "/scratch"

// DefaultUser is the recipe-level user used when none is given.
const DefaultUser = "root"

// MappingPath is a host-filesystem path paired with a container-filesystem
// path, as used by a task's mount_paths entries. A bare "path" (no colon)
// means the host and container paths are identical.
type MappingPath struct {
	HostPath      string
	ContainerPath string
}

func (m MappingPath) String() string {
	return fmt.Sprintf("%s:%s", m.HostPath, m.ContainerPath)
}

// UnmarshalYAML parses "host:container" or a bare "path" form.
func (m *MappingPath) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("illegal mount path: %w", err)
	}
	if host, container, ok := strings.Cut(s, ":"); ok {
		m.HostPath = host
		m.ContainerPath = container
	} else {
		m.HostPath = s
		m.ContainerPath = s
	}
	return nil
}

// MarshalYAML renders a MappingPath back to its "host:container" string form.
func (m MappingPath) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// Task is a named unit of work within a Recipe.
type Task struct {
	Description          string             `yaml:"description,omitempty"`
	Dependencies         []string           `yaml:"dependencies,omitempty"`
	Cache                *bool              `yaml:"cache,omitempty"`
	Environment          map[string]*string `yaml:"environment,omitempty"`
	InputPaths           []string           `yaml:"input_paths,omitempty"`
	ExcludedInputPaths   []string           `yaml:"excluded_input_paths,omitempty"`
	OutputPaths          []string           `yaml:"output_paths,omitempty"`
	OutputPathsOnFailure []string           `yaml:"output_paths_on_failure,omitempty"`
	MountPaths           []MappingPath      `yaml:"mount_paths,omitempty"`
	MountReadonly        bool               `yaml:"mount_readonly,omitempty"`
	Ports                []string           `yaml:"ports,omitempty"`
	Location             string             `yaml:"location,omitempty"`
	User                 string             `yaml:"user,omitempty"`
	Command              string             `yaml:"command,omitempty"`
	CommandPrefix        *string            `yaml:"command_prefix,omitempty"`
	ExtraContainerArgs   []string           `yaml:"extra_container_args,omitempty"`
	// Watch supplements spec.md's cache-prefix discussion with the
	// filesystem-watch feature present in the original runner.rs but left
	// out of the distilled spec; disallowed together with Cache.
	Watch bool `yaml:"watch,omitempty"`
}

// CacheEnabled reports whether this task participates in caching. Absent
// ("cache" key omitted) defaults to true, matching the original's
// #[serde(default = "default_task_cache")].
func (t *Task) CacheEnabled() bool {
	if t.Cache == nil {
		return true
	}
	return *t.Cache
}

// Recipe is the top-level declarative document.
type Recipe struct {
	Image         string           `yaml:"image"`
	Default       *string          `yaml:"default,omitempty"`
	Location      string           `yaml:"location,omitempty"`
	User          string           `yaml:"user,omitempty"`
	CommandPrefix string           `yaml:"command_prefix,omitempty"`
	Tasks         map[string]*Task `yaml:"tasks"`
}

// Parse decodes recipe text into a Recipe. Unknown top-level or
// task-level keys are rejected, matching spec.md §6.
func Parse(data []byte) (*Recipe, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Recipe
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("syntax error: %w", err)
	}

	if r.Location == "" {
		r.Location = DefaultLocation
	}
	if r.User == "" {
		r.User = DefaultUser
	}
	if r.Tasks == nil {
		r.Tasks = map[string]*Task{}
	}

	return &r, nil
}

// Location returns the effective in-container location for a task,
// falling back to the recipe's location when the task leaves it unset.
func (r *Recipe) Location(task *Task) string {
	if task.Location != "" {
		return task.Location
	}
	return r.Location
}

// User returns the effective in-container user for a task, falling back
// to the recipe's user when the task leaves it unset.
func (r *Recipe) User(task *Task) string {
	if task.User != "" {
		return task.User
	}
	return r.User
}

// Command assembles the full shell text for a task: its command prefix
// (or the recipe's, if unset) followed by a newline and the task's command.
func (r *Recipe) Command(task *Task) string {
	prefix := r.CommandPrefix
	if task.CommandPrefix != nil {
		prefix = *task.CommandPrefix
	}
	return prefix + "\n" + task.Command
}
