package recipe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/banksean/toast/internal/toasterr"
)

func isAbsoluteUnixPath(p string) bool {
	return strings.HasPrefix(p, "/")
}

func isRelativeUnixPath(p string) bool {
	return !isAbsoluteUnixPath(p)
}

// Validate performs the ordered checks described in spec.md §4.3:
// absolute locations, dependency existence, default-task existence,
// acyclicity, and the remaining per-task invariants.
func (r *Recipe) Validate() error {
	if !isAbsoluteUnixPath(r.Location) {
		return toasterr.User(fmt.Sprintf("The recipe has a relative location: `%s`.", r.Location), nil)
	}

	names := make([]string, 0, len(r.Tasks))
	for name := range r.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		task := r.Tasks[name]
		if task.Location != "" && !isAbsoluteUnixPath(task.Location) {
			return toasterr.User(fmt.Sprintf("Task `%s` has a relative location: `%s`.", name, task.Location), nil)
		}
	}

	if err := r.checkDependenciesExist(names); err != nil {
		return err
	}

	if r.Default != nil {
		if _, ok := r.Tasks[*r.Default]; !ok {
			return toasterr.User(fmt.Sprintf("The default task `%s` does not exist.", *r.Default), nil)
		}
	}

	if err := r.checkAcyclic(names); err != nil {
		return err
	}

	for _, name := range names {
		if err := checkTask(name, r.Tasks[name]); err != nil {
			return err
		}
	}

	return nil
}

func (r *Recipe) checkDependenciesExist(names []string) error {
	for _, name := range names {
		for _, dep := range r.Tasks[name].Dependencies {
			if _, ok := r.Tasks[dep]; !ok {
				return toasterr.User(
					fmt.Sprintf("Task `%s` depends on nonexistent task `%s`.", name, dep), nil)
			}
		}
	}
	return nil
}

// checkAcyclic runs a DFS from every task, tracking the current ancestor
// path. Encountering a task already on that path means a cycle; the
// error message reconstructs the minimal cycle found.
func (r *Recipe) checkAcyclic(names []string) error {
	visited := map[string]bool{}

	for _, root := range names {
		if visited[root] {
			continue
		}

		type frame struct {
			task  string
			depth int
		}
		frontier := []frame{{root, 0}}
		ancestorsSet := map[string]bool{}
		var ancestorsStack []string

		for len(frontier) > 0 {
			top := frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]

			for len(ancestorsStack) > top.depth {
				removed := ancestorsStack[len(ancestorsStack)-1]
				ancestorsStack = ancestorsStack[:len(ancestorsStack)-1]
				delete(ancestorsSet, removed)
			}

			if ancestorsSet[top.task] {
				idx := 0
				for i, t := range ancestorsStack {
					if t == top.task {
						idx = i
						break
					}
				}
				cycle := append([]string{}, ancestorsStack[idx:]...)
				return toasterr.User(fmt.Sprintf("The dependencies are cyclic. %s", cycleMessage(cycle)), nil)
			}

			if !visited[top.task] {
				visited[top.task] = true
				ancestorsSet[top.task] = true
				ancestorsStack = append(ancestorsStack, top.task)

				for _, dep := range r.Tasks[top.task].Dependencies {
					frontier = append(frontier, frame{dep, top.depth + 1})
				}
			}
		}
	}

	return nil
}

func cycleMessage(cycle []string) string {
	if len(cycle) == 1 {
		return fmt.Sprintf("`%s` depends on itself.", cycle[0])
	}
	if len(cycle) == 2 {
		return fmt.Sprintf("`%s` depends on `%s`, which depends on `%s`.", cycle[0], cycle[1], cycle[0])
	}
	parts := make([]string, len(cycle))
	for i, t := range cycle {
		parts[i] = fmt.Sprintf("`%s`", t)
	}
	return fmt.Sprintf("%s depend on each other in a cycle.", strings.Join(parts, " -> "))
}

func checkTask(name string, task *Task) error {
	for variable := range task.Environment {
		if strings.Contains(variable, "=") {
			return toasterr.User(
				fmt.Sprintf("Environment variable `%s` of task `%s` contains `=`.", variable, name), nil)
		}
	}

	for _, p := range task.InputPaths {
		if !isRelativeUnixPath(p) {
			return toasterr.User(fmt.Sprintf("Task `%s` has an absolute input_path: `%s`.", name, p), nil)
		}
	}

	for _, p := range task.ExcludedInputPaths {
		if !isRelativeUnixPath(p) {
			return toasterr.User(fmt.Sprintf("Task `%s` has an absolute excluded_input_path: `%s`.", name, p), nil)
		}
	}

	for _, p := range task.OutputPaths {
		if !isRelativeUnixPath(p) {
			return toasterr.User(fmt.Sprintf("Task `%s` has an absolute path in output_paths: `%s`.", name, p), nil)
		}
	}

	for _, p := range task.OutputPathsOnFailure {
		if !isRelativeUnixPath(p) {
			return toasterr.User(fmt.Sprintf("Task `%s` has an absolute path in output_paths_on_failure: `%s`.", name, p), nil)
		}
	}

	for _, m := range task.MountPaths {
		if strings.Contains(m.HostPath, ",") || strings.Contains(m.ContainerPath, ",") {
			return toasterr.User(fmt.Sprintf("Mount path `%s` of task `%s` has a `,`.", m, name), nil)
		}
	}

	if task.Location != "" && !isAbsoluteUnixPath(task.Location) {
		return toasterr.User(fmt.Sprintf("Task `%s` has a relative location: `%s`.", name, task.Location), nil)
	}

	if task.CacheEnabled() && len(task.MountPaths) > 0 {
		return toasterr.User(
			fmt.Sprintf("Task `%s` has mount_paths but does not disable caching. To fix this, set `cache: false` for this task.", name), nil)
	}

	if task.CacheEnabled() && len(task.Ports) > 0 {
		return toasterr.User(
			fmt.Sprintf("Task `%s` exposes ports but does not disable caching. To fix this, set `cache: false` for this task.", name), nil)
	}

	if task.CacheEnabled() && len(task.ExtraContainerArgs) > 0 {
		return toasterr.User(
			fmt.Sprintf("Task `%s` has extra_container_args but does not disable caching. To fix this, set `cache: false` for this task.", name), nil)
	}

	if task.CacheEnabled() && task.Watch {
		return toasterr.User(
			fmt.Sprintf("Task `%s` enables watch but does not disable caching. To fix this, set `cache: false` for this task.", name), nil)
	}

	return nil
}
