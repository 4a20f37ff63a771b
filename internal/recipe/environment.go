package recipe

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/banksean/toast/internal/toasterr"
)

// ResolveEnvironment resolves a single task's declared environment
// variables against the host environment. A variable present on the
// host wins; otherwise the recipe-declared default is used; if neither
// exists, the variable name is returned as a violation.
func (t *Task) ResolveEnvironment(hostEnv func(string) (string, bool)) (map[string]string, []string) {
	result := make(map[string]string, len(t.Environment))
	var violations []string

	names := make([]string, 0, len(t.Environment))
	for name := range t.Environment {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := t.Environment[name]
		if hostValue, ok := hostEnv(name); ok {
			result[name] = hostValue
		} else if def != nil {
			result[name] = *def
		} else {
			violations = append(violations, name)
		}
	}

	if len(violations) > 0 {
		return nil, violations
	}
	return result, nil
}

// ResolveScheduleEnvironment resolves the union of environment variables
// declared by every task in schedule, aggregating violations across the
// whole schedule into a single user error, per spec.md §4.3.
func (r *Recipe) ResolveScheduleEnvironment(schedule []string) (map[string]string, error) {
	env := map[string]string{}
	violations := map[string][]string{}

	for _, name := range schedule {
		task := r.Tasks[name]
		resolved, missing := task.ResolveEnvironment(os.LookupEnv)
		if missing != nil {
			violations[name] = missing
			continue
		}
		for k, v := range resolved {
			env[k] = v
		}
	}

	if len(violations) == 0 {
		return env, nil
	}

	taskNames := make([]string, 0, len(violations))
	for name := range violations {
		taskNames = append(taskNames, name)
	}
	sort.Strings(taskNames)

	parts := make([]string, 0, len(taskNames))
	for _, name := range taskNames {
		vars := violations[name]
		sort.Strings(vars)
		quoted := make([]string, len(vars))
		for i, v := range vars {
			quoted[i] = fmt.Sprintf("`%s`", v)
		}
		parts = append(parts, fmt.Sprintf("`%s` (%s)", name, strings.Join(quoted, ", ")))
	}

	return nil, toasterr.User(
		fmt.Sprintf("The following tasks are missing variables from the environment: %s.", strings.Join(parts, ", ")),
		nil,
	)
}
