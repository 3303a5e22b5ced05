package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"merkle-diff/internal/hash"
)

type serializedSnapshot struct {
	Algorithm string            `json:"algorithm,omitempty"`
	Root      string            `json:"root"`
	Files     map[string]string `json:"files"`
}

// Store reads and writes snapshot files on a billy filesystem.
type Store struct {
	fs billy.Filesystem
}

func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// OpenStore returns a Store rooted at the directory of the OS path p, and the
// name of p inside that store.
func OpenStore(p string) (*Store, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return NewStore(osfs.New(filepath.Dir(abs))), filepath.Base(abs), nil
}

// Marshal encodes snap as indented JSON. Map keys are sorted, so an unchanged
// snapshot always encodes to the same bytes.
func Marshal(snap *Snapshot) ([]byte, error) {
	serialized := serializedSnapshot{
		Algorithm: string(snap.Algorithm),
		Root:      snap.Root.String(),
		Files:     make(map[string]string, len(snap.Files)),
	}
	for p, d := range snap.Files {
		serialized.Files[p] = d.String()
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(serialized); err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes and verifies a snapshot. name is only used in errors.
// Any problem yields a *CorruptError and a nil snapshot.
func Unmarshal(name string, data []byte) (*Snapshot, error) {
	var serialized serializedSnapshot
	if err := json.Unmarshal(data, &serialized); err != nil {
		return nil, corrupt(name, "invalid JSON", err)
	}

	alg, err := hash.ParseAlgorithm(serialized.Algorithm)
	if err != nil {
		return nil, corrupt(name, "invalid algorithm", err)
	}
	if serialized.Root == "" {
		return nil, corrupt(name, "missing root", nil)
	}
	root, err := hash.ParseDigest(serialized.Root)
	if err != nil {
		return nil, corrupt(name, "invalid root", err)
	}

	files := make(map[string]hash.Digest, len(serialized.Files))
	for p, hexDigest := range serialized.Files {
		if err := ValidatePath(p); err != nil {
			return nil, corrupt(name, "invalid path", err)
		}
		d, err := hash.ParseDigest(hexDigest)
		if err != nil {
			return nil, corrupt(name, fmt.Sprintf("invalid digest for %q", p), err)
		}
		files[p] = d
	}

	snap := &Snapshot{Algorithm: alg, Root: root, Files: files}
	if err := snap.Verify(); err != nil {
		return nil, corrupt(name, "verification failed", err)
	}
	return snap, nil
}

// Save writes snap to name atomically: the data goes to a temporary file in
// the same directory which then replaces name.
func (s *Store) Save(name string, snap *Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}

	tmp, tmpName, err := s.createTemp(name)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if err := writeAndClose(tmp, data); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := s.fs.Rename(tmpName, name); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

const maxTempAttempts = 10

func tempPrefix(base string) string {
	return base + ".tmp-"
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`)

// TempPattern returns an anchored gitignore pattern matching the temporary
// files Save creates for name. A save interrupted before its rename leaves
// one behind. name is slash-separated and relative to the pattern's root.
func TempPattern(name string) string {
	dir, base := path.Split(path.Clean(name))
	return "/" + globEscaper.Replace(dir+tempPrefix(base)) + "*"
}

func (s *Store) createTemp(name string) (billy.File, string, error) {
	dir, base := filepath.Split(name)
	var lastErr error
	for i := 0; i < maxTempAttempts; i++ {
		tmpName := filepath.Join(dir, fmt.Sprintf("%s%d-%d", tempPrefix(base), os.Getpid(), time.Now().UnixNano()+int64(i)))
		f, err := s.fs.OpenFile(tmpName, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, tmpName, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func writeAndClose(f billy.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if syncer, ok := f.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// Load reads and verifies the snapshot stored at name. It returns
// ErrNotFound when the file does not exist.
func (s *Store) Load(name string) (*Snapshot, error) {
	f, err := s.fs.Open(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return Unmarshal(name, data)
}
