// Package orchestrator runs one scan of a directory: it digests every file,
// commits the digests to a Merkle tree, compares the result with the prior
// snapshot and persists the new one.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	metrics "github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"

	"merkle-diff/internal/compare"
	"merkle-diff/internal/hash"
	"merkle-diff/internal/progress"
	"merkle-diff/internal/snapshot"
	"merkle-diff/internal/tree"
	"merkle-diff/internal/walker"
)

// ErrCertification is returned when a certificate for an unchanged file
// fails to verify against the old and new roots.
var ErrCertification = errors.New("unchanged file certificate does not verify")

type State int

const (
	Init State = iota
	Scan
	Build
	LoadPrior
	Compare
	Persist
	Done
)

var stateNames = [...]string{"INIT", "SCAN", "BUILD", "LOAD_PRIOR", "COMPARE", "PERSIST", "DONE"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

type Options struct {
	// Dir is the directory to scan.
	Dir string
	// Snapshot is the snapshot file. A relative path resolves against Dir.
	Snapshot  string
	Algorithm hash.Algorithm
	Workers   int
	Exclude   []string
	Gitignore bool
	// Certify produces inclusion proofs for every unchanged file.
	Certify bool
	// DryRun compares without writing the new snapshot.
	DryRun bool

	// Progress receives the progress bar. Nil disables it.
	Progress io.Writer
	Logger   log.FieldLogger
	Metrics  metrics.Registry
}

// Outcome describes a run. Baseline and Diff are nil when no prior snapshot
// existed.
type Outcome struct {
	Trace        []State
	Dir          string
	SnapshotPath string
	Algorithm    hash.Algorithm
	Root         hash.Digest
	Files        int
	Bytes        int64
	// Unstable lists files whose size changed between listing and hashing.
	Unstable     []string
	Baseline     *snapshot.Snapshot
	Diff         *compare.Result
	Certificates []compare.Certificate
	Persisted    bool
}

func (o *Outcome) HasChanges() bool {
	return o.Diff != nil && o.Diff.HasChanges()
}

type run struct {
	ctx     context.Context
	opts    Options
	log     log.FieldLogger
	metrics metrics.Registry
	out     *Outcome

	scanned  *scanResult
	store    *snapshot.Store
	snapName string
	tree     *tree.MerkleTree
}

type scanResult struct {
	files  []walker.FileInfo
	hashes map[string]hash.Digest
}

// Run executes one scan. On failure the returned Outcome records the states
// that were reached; nothing is persisted.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	r := &run{
		ctx:     ctx,
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
		out:     &Outcome{},
	}
	if r.log == nil {
		r.log = log.StandardLogger()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewRegistry()
	}
	defer r.dumpMetrics()

	steps := []struct {
		state State
		fn    func() (bool, error)
	}{
		{Init, r.init},
		{Scan, r.scan},
		{Build, r.build},
		{LoadPrior, r.loadPrior},
		{Compare, r.compare},
		{Persist, r.persist},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return r.out, err
		}
		start := time.Now()
		ran, err := step.fn()
		if ran || err != nil {
			r.out.Trace = append(r.out.Trace, step.state)
			metrics.GetOrRegisterTimer("phase."+strings.ToLower(step.state.String()), r.metrics).UpdateSince(start)
		}
		if err != nil {
			r.log.WithField("state", step.state).WithError(err).Debug("Run aborted")
			return r.out, err
		}
		if !ran {
			r.log.WithField("state", step.state).Debug("Skipped")
		}
	}
	r.out.Trace = append(r.out.Trace, Done)
	return r.out, nil
}

func (r *run) init() (bool, error) {
	alg := r.opts.Algorithm
	if alg == "" {
		alg = hash.Default
	}
	if err := alg.Validate(); err != nil {
		return true, err
	}
	r.out.Algorithm = alg

	dir, err := filepath.Abs(r.opts.Dir)
	if err != nil {
		return true, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return true, &walker.IOError{Op: "stat", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return true, &walker.IOError{Op: "stat", Path: dir, Err: errors.New("not a directory")}
	}
	r.out.Dir = dir

	snapPath := r.opts.Snapshot
	if snapPath == "" {
		return true, errors.New("no snapshot path given")
	}
	if !filepath.IsAbs(snapPath) {
		snapPath = filepath.Join(dir, snapPath)
	}
	r.store, r.snapName, err = snapshot.OpenStore(snapPath)
	if err != nil {
		return true, err
	}
	r.out.SnapshotPath = filepath.Clean(snapPath)

	r.log.WithFields(log.Fields{
		"dir":       dir,
		"snapshot":  r.out.SnapshotPath,
		"algorithm": alg,
	}).Info("Starting scan")
	return true, nil
}

func (r *run) scan() (bool, error) {
	opts := walker.Options{
		Exclude:   r.opts.Exclude,
		Gitignore: r.opts.Gitignore,
	}
	// The snapshot must not digest itself, nor a temporary file left by an
	// interrupted save.
	if rel, err := filepath.Rel(r.out.Dir, r.out.SnapshotPath); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		rel = filepath.ToSlash(rel)
		opts.Skip = []string{rel}
		opts.Exclude = append(append([]string(nil), r.opts.Exclude...), snapshot.TempPattern(rel))
	}

	fs := osfs.New(r.out.Dir)
	files, err := walker.Enumerate(fs, opts)
	if err != nil {
		return true, err
	}
	r.log.WithField("files", len(files)).Info("Enumerated files")

	bar := progress.New(r.opts.Progress, int64(len(files)), r.opts.Progress != nil)
	result, err := walker.HashFiles(r.ctx, fs, files, r.out.Algorithm, r.opts.Workers, bar)
	if err != nil {
		return true, err
	}
	bar.Finish()

	for _, p := range result.Unstable {
		r.log.WithField("path", p).Warn("File changed size while being scanned")
	}

	r.scanned = &scanResult{files: files, hashes: result.Hashes}
	r.out.Files = len(files)
	r.out.Bytes = result.Bytes
	r.out.Unstable = result.Unstable
	metrics.GetOrRegisterCounter("files.hashed", r.metrics).Inc(int64(len(result.Hashes)))
	metrics.GetOrRegisterCounter("bytes.hashed", r.metrics).Inc(result.Bytes)
	return true, nil
}

func (r *run) build() (bool, error) {
	b, err := tree.NewBuilder(r.out.Algorithm)
	if err != nil {
		return true, err
	}
	for _, f := range r.scanned.files {
		if err := b.Add(f.Path, r.scanned.hashes[f.Path]); err != nil {
			return true, err
		}
	}
	mt, err := b.Build()
	if err != nil {
		return true, err
	}

	r.tree = mt
	r.out.Root = mt.Root()
	metrics.GetOrRegisterGauge("tree.size", r.metrics).Update(int64(mt.Size()))
	r.log.WithFields(log.Fields{"root": r.out.Root, "leaves": mt.Size()}).Info("Built tree")
	return true, nil
}

func (r *run) loadPrior() (bool, error) {
	prior, err := r.store.Load(r.snapName)
	if errors.Is(err, snapshot.ErrNotFound) {
		r.log.WithField("snapshot", r.out.SnapshotPath).Info("No previous snapshot found")
		return false, nil
	}
	if err != nil {
		return true, err
	}
	r.out.Baseline = prior
	r.log.WithFields(log.Fields{"root": prior.Root, "files": len(prior.Files)}).Info("Loaded previous snapshot")
	return true, nil
}

func (r *run) compare() (bool, error) {
	prior := r.out.Baseline
	if prior == nil {
		return false, nil
	}
	if prior.Algorithm != r.out.Algorithm {
		return true, fmt.Errorf("%w: snapshot uses %s, scan uses %s",
			compare.ErrAlgorithmMismatch, prior.Algorithm, r.out.Algorithm)
	}

	r.out.Diff = compare.Diff(prior.Files, r.tree.Files())
	r.log.WithFields(log.Fields{
		"added":    len(r.out.Diff.Added),
		"modified": len(r.out.Diff.Modified),
		"removed":  len(r.out.Diff.Removed),
	}).Info("Compared with previous snapshot")

	if !r.opts.Certify {
		return true, nil
	}
	priorTree, err := prior.Tree()
	if err != nil {
		return true, err
	}
	certs, err := compare.Certify(priorTree, r.tree, r.out.Diff.Unchanged)
	if err != nil {
		return true, err
	}
	for i := range certs {
		if !certs[i].Verify(prior.Root, r.out.Root) {
			return true, fmt.Errorf("%w: %q", ErrCertification, certs[i].Path)
		}
	}
	r.out.Certificates = certs
	metrics.GetOrRegisterCounter("files.certified", r.metrics).Inc(int64(len(certs)))
	return true, nil
}

func (r *run) persist() (bool, error) {
	if r.opts.DryRun {
		return false, nil
	}
	if err := r.store.Save(r.snapName, snapshot.New(r.tree)); err != nil {
		return true, err
	}
	r.out.Persisted = true
	r.log.WithField("snapshot", r.out.SnapshotPath).Info("Saved snapshot")
	return true, nil
}

func (r *run) dumpMetrics() {
	r.metrics.Each(func(name string, m interface{}) {
		entry := r.log.WithField("metric", name)
		switch m := m.(type) {
		case metrics.Counter:
			entry.WithField("count", m.Count()).Debug("Metric")
		case metrics.Gauge:
			entry.WithField("value", m.Value()).Debug("Metric")
		case metrics.Timer:
			entry.WithField("duration", time.Duration(m.Sum())).Debug("Metric")
		}
	})
}
