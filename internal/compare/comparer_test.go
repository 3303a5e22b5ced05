package compare

import (
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"merkle-diff/internal/hash"
)

func digests(contents map[string]string) map[string]hash.Digest {
	files := make(map[string]hash.Digest, len(contents))
	for p, c := range contents {
		files[p] = hash.Sum(hash.SHA256, []byte(c))
	}
	return files
}

func assertPaths(t *testing.T, name string, changes []Change, expected ...string) {
	t.Helper()
	got := Paths(changes)
	if len(expected) == 0 {
		expected = []string{}
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("%s: expected %v, got %v", name, expected, got)
	}
}

func TestDiff_AddedFile(t *testing.T) {
	old := digests(map[string]string{"a.txt": "hi", "b.txt": "bye"})
	cur := digests(map[string]string{"a.txt": "hi", "b.txt": "bye", "c.txt": "new"})

	result := Diff(old, cur)

	assertPaths(t, "added", result.Added, "c.txt")
	assertPaths(t, "removed", result.Removed)
	assertPaths(t, "modified", result.Modified)
	if !result.HasChanges() {
		t.Error("HasChanges should be true")
	}
	if result.Added[0].Old != nil || *result.Added[0].New != cur["c.txt"] {
		t.Error("Added change should carry only the new digest")
	}
}

func TestDiff_ModifiedFile(t *testing.T) {
	old := digests(map[string]string{"a.txt": "hi", "b.txt": "bye"})
	cur := digests(map[string]string{"a.txt": "hello", "b.txt": "bye"})

	result := Diff(old, cur)

	assertPaths(t, "modified", result.Modified, "a.txt")
	assertPaths(t, "added", result.Added)
	assertPaths(t, "removed", result.Removed)
	if *result.Modified[0].Old != old["a.txt"] || *result.Modified[0].New != cur["a.txt"] {
		t.Error("Modified change should carry both digests")
	}
	if !reflect.DeepEqual(result.Unchanged, []string{"b.txt"}) {
		t.Errorf("Expected b.txt unchanged, got %v", result.Unchanged)
	}
}

func TestDiff_RemovedFile(t *testing.T) {
	old := digests(map[string]string{"a.txt": "hi", "b.txt": "bye"})
	cur := digests(map[string]string{"a.txt": "hi"})

	result := Diff(old, cur)

	assertPaths(t, "removed", result.Removed, "b.txt")
	assertPaths(t, "added", result.Added)
	assertPaths(t, "modified", result.Modified)
}

func TestDiff_SortedOutput(t *testing.T) {
	old := digests(map[string]string{"z": "1", "y": "1", "m": "1"})
	cur := digests(map[string]string{"c": "1", "b": "1", "a": "1", "m": "2"})

	result := Diff(old, cur)

	assertPaths(t, "added", result.Added, "a", "b", "c")
	assertPaths(t, "removed", result.Removed, "y", "z")
	assertPaths(t, "modified", result.Modified, "m")
}

func TestDiff_NoChanges(t *testing.T) {
	files := digests(map[string]string{"a.txt": "hi", "b.txt": "bye"})

	result := Diff(files, files)

	if result.HasChanges() {
		t.Error("Diff of a mapping with itself should be empty")
	}
	if len(result.Unchanged) != 2 {
		t.Errorf("Expected 2 unchanged, got %d", len(result.Unchanged))
	}
	if report := FormatReport(result, false); report != "No changes detected.\n" {
		t.Errorf("Unexpected report: %q", report)
	}
}

func TestDiff_EmptyMappings(t *testing.T) {
	result := Diff(nil, nil)
	if result.HasChanges() || len(result.Unchanged) != 0 {
		t.Error("Diff of empty mappings should be empty")
	}

	result = Diff(nil, digests(map[string]string{"a": "1"}))
	assertPaths(t, "added", result.Added, "a")
}

func genFiles() gopter.Gen {
	// Small key and value spaces so that both sides overlap often.
	return gen.MapOf(
		gen.OneConstOf("a", "b", "c", "d/e", "d/f", "ü", "g h"),
		gen.OneConstOf("1", "2", "3"),
	).Map(func(m map[string]string) map[string]hash.Digest {
		return digests(m)
	})
}

func TestDiff_PartitionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("added, removed, modified and unchanged partition all paths", prop.ForAll(
		func(old, cur map[string]hash.Digest) bool {
			result := Diff(old, cur)

			seen := make(map[string]int)
			for _, c := range result.Added {
				if _, inOld := old[c.Path]; inOld {
					return false
				}
				if _, inNew := cur[c.Path]; !inNew {
					return false
				}
				seen[c.Path]++
			}
			for _, c := range result.Removed {
				if _, inNew := cur[c.Path]; inNew {
					return false
				}
				seen[c.Path]++
			}
			for _, c := range result.Modified {
				o, inOld := old[c.Path]
				n, inNew := cur[c.Path]
				if !inOld || !inNew || o == n {
					return false
				}
				seen[c.Path]++
			}
			for _, p := range result.Unchanged {
				if old[p] != cur[p] {
					return false
				}
				seen[p]++
			}

			all := make(map[string]bool)
			for p := range old {
				all[p] = true
			}
			for p := range cur {
				all[p] = true
			}
			if len(seen) != len(all) {
				return false
			}
			for p, n := range seen {
				if n != 1 || !all[p] {
					return false
				}
			}
			return sort.SliceIsSorted(result.Added, func(i, j int) bool {
				return result.Added[i].Path < result.Added[j].Path
			})
		},
		genFiles(),
		genFiles(),
	))

	properties.Property("diff(x, x) is empty", prop.ForAll(
		func(files map[string]hash.Digest) bool {
			return !Diff(files, files).HasChanges()
		},
		genFiles(),
	))

	properties.Property("swapping sides swaps added and removed", prop.ForAll(
		func(old, cur map[string]hash.Digest) bool {
			forward := Diff(old, cur)
			backward := Diff(cur, old)
			return reflect.DeepEqual(Paths(forward.Added), Paths(backward.Removed)) &&
				reflect.DeepEqual(Paths(forward.Modified), Paths(backward.Modified))
		},
		genFiles(),
		genFiles(),
	))

	properties.TestingRun(t)
}

func TestFormatReport(t *testing.T) {
	old := digests(map[string]string{"a.txt": "hi", "b.txt": "bye", "keep": "same"})
	cur := digests(map[string]string{"a.txt": "hello", "c.txt": "new", "keep": "same"})

	report := FormatReport(Diff(old, cur), false)

	for _, want := range []string{
		"ADDED (1 files):",
		"  + c.txt (hash: " + cur["c.txt"].String() + ")",
		"MODIFIED (1 files):",
		"  ~ a.txt",
		"    Old: hash=" + old["a.txt"].String(),
		"REMOVED (1 files):",
		"  - b.txt",
		"Summary: 1 added, 1 modified, 1 removed, 1 unchanged",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("Report missing %q:\n%s", want, report)
		}
	}
	if strings.Contains(report, "\033[") {
		t.Error("Report without color should not contain escape sequences")
	}

	colored := FormatReport(Diff(old, cur), true)
	if !strings.Contains(colored, green+"+ c.txt"+reset) {
		t.Errorf("Colored report should highlight added files:\n%q", colored)
	}
}
