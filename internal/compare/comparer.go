package compare

import (
	"sort"

	"merkle-diff/internal/hash"
)

type ChangeType string

const (
	Added    ChangeType = "ADDED"
	Modified ChangeType = "MODIFIED"
	Removed  ChangeType = "REMOVED"
)

type Change struct {
	Type ChangeType
	Path string
	Old  *hash.Digest
	New  *hash.Digest
}

// Result partitions the paths of two snapshots. Added, Modified and Removed
// are disjoint; Unchanged holds the paths present in both with equal digests.
type Result struct {
	Added     []Change
	Modified  []Change
	Removed   []Change
	Unchanged []string
}

func (r *Result) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Modified) > 0 || len(r.Removed) > 0
}

// Paths returns the paths of changes, in order.
func Paths(changes []Change) []string {
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
	}
	return paths
}

// Diff compares two path -> digest mappings. It runs in time linear in the
// total number of paths and does not depend on tree shape.
func Diff(oldFiles, newFiles map[string]hash.Digest) *Result {
	result := &Result{
		Added:     make([]Change, 0),
		Modified:  make([]Change, 0),
		Removed:   make([]Change, 0),
		Unchanged: make([]string, 0),
	}

	// Check for added and modified files
	for path, newDigest := range newFiles {
		newDigest := newDigest
		if oldDigest, exists := oldFiles[path]; exists {
			if oldDigest != newDigest {
				result.Modified = append(result.Modified, Change{
					Type: Modified,
					Path: path,
					Old:  &oldDigest,
					New:  &newDigest,
				})
			} else {
				result.Unchanged = append(result.Unchanged, path)
			}
		} else {
			result.Added = append(result.Added, Change{
				Type: Added,
				Path: path,
				New:  &newDigest,
			})
		}
	}

	// Check for removed files
	for path, oldDigest := range oldFiles {
		oldDigest := oldDigest
		if _, exists := newFiles[path]; !exists {
			result.Removed = append(result.Removed, Change{
				Type: Removed,
				Path: path,
				Old:  &oldDigest,
			})
		}
	}

	// Sort for deterministic output
	sortChanges(result.Added)
	sortChanges(result.Modified)
	sortChanges(result.Removed)
	sort.Strings(result.Unchanged)

	return result
}

func sortChanges(changes []Change) {
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
}
