// Package cachekey derives the cumulative cache key that chains a
// schedule's per-task inputs into a single content-addressed string.
package cachekey

import (
	"sort"

	"github.com/banksean/toast/internal/hasher"
	"github.com/banksean/toast/internal/recipe"
)

// version is bumped to invalidate all existing caches.
const version = "0"

// ImageTagPrefix disambiguates our tags from a bare 64-hex-char string,
// which some container engines reject as an image tag.
const ImageTagPrefix = "toast-"

// Next derives the cache key for one task given the previous key in the
// schedule, the task's declared environment/location/user/command, and
// the content hash of its input archive. If the task has no declared
// environment, input paths, or command, it is a pure layer over the
// previous state and the key passes through unchanged.
func Next(previousKey string, task *recipe.Task, location, user, command string, resolvedEnv map[string]string, inputArchiveHash string) string {
	if len(task.Environment) == 0 && len(task.InputPaths) == 0 && task.Command == "" {
		return previousKey
	}

	key := previousKey
	key = hasher.Combine(key, version)

	envHash := ""
	names := make([]string, 0, len(task.Environment))
	for name := range task.Environment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		envHash = hasher.Combine(envHash, name)
		envHash = hasher.Combine(envHash, resolvedEnv[name])
	}
	key = hasher.Combine(key, envHash)

	key = hasher.Combine(key, inputArchiveHash)
	key = hasher.Combine(key, location)
	key = hasher.Combine(key, user)
	key = hasher.Combine(key, command)

	return ImageTagPrefix + key
}

// InitialKey computes the starting cache key for a schedule, derived
// from the recipe's base image name.
func InitialKey(baseImage string) string {
	return hasher.HashString(baseImage)
}
