// Package schedule computes a deterministic linear execution order for
// a set of root tasks over a recipe's dependency DAG.
package schedule

import "sort"

// DependencyLookup returns the direct dependencies of a task by name.
type DependencyLookup func(task string) []string

// Compute returns the transitive reflexive closure of roots, topologically
// sorted, with lexicographic tie-breaking. The result is invariant under
// permutation or duplication of roots, and under permutation or
// duplication of any task's dependencies.
func Compute(roots []string, deps DependencyLookup) []string {
	sortedRoots := append([]string{}, roots...)
	sort.Strings(sortedRoots)

	visited := map[string]bool{}
	var result []string

	type frame struct {
		task  string
		fresh bool
	}

	for _, root := range sortedRoots {
		frontier := []frame{{root, true}}

		for len(frontier) > 0 {
			top := frontier[len(frontier)-1]
			frontier = frontier[:len(frontier)-1]

			if top.fresh {
				if visited[top.task] {
					continue
				}
				visited[top.task] = true

				frontier = append(frontier, frame{top.task, false})

				dependencies := append([]string{}, deps(top.task)...)
				sort.Strings(dependencies)
				for i := len(dependencies) - 1; i >= 0; i-- {
					frontier = append(frontier, frame{dependencies[i], true})
				}
			} else {
				result = append(result, top.task)
			}
		}
	}

	return result
}
