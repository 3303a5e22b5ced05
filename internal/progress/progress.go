package progress

import (
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultWidth   = 50
	redrawInterval = 100 * time.Millisecond
	maxDirsShown   = 3
)

// Bar is a single-line progress indicator for the hashing phase. A disabled
// Bar accepts every call and draws nothing.
type Bar struct {
	total      int64
	current    int64
	width      int
	writer     io.Writer
	enabled    bool
	lastUpdate time.Time

	mu   sync.Mutex
	dirs map[string]bool
}

// New returns a Bar counting up to total that draws on w when enabled.
func New(w io.Writer, total int64, enabled bool) *Bar {
	return &Bar{
		total:   total,
		width:   defaultWidth,
		writer:  w,
		enabled: enabled && w != nil,
		dirs:    make(map[string]bool),
	}
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// SetDirectory records a directory currently being processed.
func (b *Bar) SetDirectory(dir string) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirs[dir] {
		return
	}
	b.dirs[dir] = true
	b.render()
}

func (b *Bar) Increment() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++

	// Throttle redraws to reduce flickering
	now := time.Now()
	if now.Sub(b.lastUpdate) > redrawInterval || b.current == b.total {
		b.lastUpdate = now
		b.render()
	}
}

// Current returns the number of completed items.
func (b *Bar) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// render must be called with mu held
func (b *Bar) render() {
	if b.total == 0 {
		return
	}

	current := b.current
	if current > b.total {
		current = b.total
	}
	percent := float64(current) / float64(b.total) * 100
	filledWidth := int(float64(b.width) * float64(current) / float64(b.total))

	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", b.width-filledWidth)

	fmt.Fprintf(b.writer, "\r\033[K[%s] %3d%% (%d/%d)%s",
		bar, int(percent), current, b.total, b.dirDisplay())
}

func (b *Bar) dirDisplay() string {
	if len(b.dirs) == 0 {
		return ""
	}
	names := make([]string, 0, len(b.dirs))
	for dir := range b.dirs {
		names = append(names, path.Base(dir))
	}
	sort.Strings(names)

	if len(names) > maxDirsShown {
		return fmt.Sprintf(" | %s +%d more", strings.Join(names[:maxDirsShown], ", "), len(names)-maxDirsShown)
	}
	return " | " + strings.Join(names, ", ")
}

func (b *Bar) Finish() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.total
	b.render()
	fmt.Fprintln(b.writer)
}
