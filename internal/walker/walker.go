package walker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"golang.org/x/sync/errgroup"

	"merkle-diff/internal/hash"
	"merkle-diff/internal/progress"
)

// ErrInvalidName is returned for file names that are not valid UTF-8 and so
// cannot be recorded as snapshot paths.
var ErrInvalidName = errors.New("file name is not valid UTF-8")

// vcsDirs are never scanned, whatever the exclusion rules say.
var vcsDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
	".bzr": true,
}

// IOError reports a filesystem failure while scanning. Any IOError aborts
// the run.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FileInfo describes one regular file. Path is relative to the scanned root
// and uses forward slashes.
type FileInfo struct {
	Path string
	Size int64
}

type Options struct {
	// Exclude holds gitignore-style patterns.
	Exclude []string
	// Gitignore makes .gitignore files found in the tree apply as well.
	Gitignore bool
	// Skip lists exact relative paths to leave out.
	Skip []string
}

// Enumerate lists the regular files of fs, sorted by path. Symlinks and
// special files are skipped.
func Enumerate(fs billy.Filesystem, opts Options) ([]FileInfo, error) {
	matcher, err := newMatcher(fs, opts)
	if err != nil {
		return nil, err
	}

	skip := make(map[string]bool, len(opts.Skip))
	for _, p := range opts.Skip {
		skip[p] = true
	}

	w := &walk{fs: fs, matcher: matcher, skip: skip, files: make([]FileInfo, 0)}
	if err := w.dir(nil); err != nil {
		return nil, err
	}

	sort.Slice(w.files, func(i, j int) bool {
		return w.files[i].Path < w.files[j].Path
	})
	return w.files, nil
}

func newMatcher(fs billy.Filesystem, opts Options) (gitignore.Matcher, error) {
	var patterns []gitignore.Pattern
	if opts.Gitignore {
		ps, err := gitignore.ReadPatterns(fs, nil)
		if err != nil {
			return nil, &IOError{Op: "read", Path: ".gitignore", Err: err}
		}
		patterns = append(patterns, ps...)
	}
	// Later patterns take precedence, so configured exclusions win over
	// .gitignore files.
	for _, p := range opts.Exclude {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}

type walk struct {
	fs      billy.Filesystem
	matcher gitignore.Matcher
	skip    map[string]bool
	files   []FileInfo
}

func (w *walk) dir(parts []string) error {
	dirPath := path.Join(parts...)
	entries, err := w.fs.ReadDir(dirPath)
	if err != nil {
		if dirPath == "" {
			dirPath = "."
		}
		return &IOError{Op: "readdir", Path: dirPath, Err: err}
	}

	for _, entry := range entries {
		name := entry.Name()
		child := append(parts[:len(parts):len(parts)], name)
		relPath := path.Join(child...)
		if !utf8.ValidString(name) {
			return &IOError{Op: "scan", Path: relPath, Err: ErrInvalidName}
		}

		if entry.IsDir() {
			if vcsDirs[name] || w.matcher.Match(child, true) {
				continue
			}
			if err := w.dir(child); err != nil {
				return err
			}
			continue
		}

		if !entry.Mode().IsRegular() || w.skip[relPath] || w.matcher.Match(child, false) {
			continue
		}
		w.files = append(w.files, FileInfo{Path: relPath, Size: entry.Size()})
	}
	return nil
}

type HashResult struct {
	Hashes map[string]hash.Digest // path -> digest
	Bytes  int64
	// Unstable holds, sorted, the files whose digested length differs from
	// the size seen by Enumerate.
	Unstable []string
}

// HashFiles digests files with at most numWorkers concurrent readers. The
// first failure cancels the remaining work and is returned as an *IOError.
func HashFiles(ctx context.Context, fs billy.Basic, files []FileInfo, alg hash.Algorithm, numWorkers int, progressBar *progress.Bar) (*HashResult, error) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if err := alg.Validate(); err != nil {
		return nil, err
	}

	result := &HashResult{
		Hashes: make(map[string]hash.Digest, len(files)),
	}
	if len(files) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)

	for _, fileInfo := range files {
		fileInfo := fileInfo
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, n, err := hash.HashFile(fs, fileInfo.Path, alg)
			if err != nil {
				return &IOError{Op: "hash", Path: fileInfo.Path, Err: err}
			}

			mu.Lock()
			result.Hashes[fileInfo.Path] = d
			result.Bytes += n
			if n != fileInfo.Size {
				result.Unstable = append(result.Unstable, fileInfo.Path)
			}
			mu.Unlock()

			if progressBar != nil {
				progressBar.SetDirectory(path.Dir(fileInfo.Path))
				progressBar.Increment()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(result.Unstable)
	return result, nil
}
