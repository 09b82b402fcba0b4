package logsource

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Status reports the health of one fetch.
type Status string

const (
	StatusOK          Status = "ok"
	StatusUnavailable Status = "unavailable"
	StatusError       Status = "error"
)

// Result is the outcome of one Fetch call. Lines holds only lines not
// yielded by a previous fetch of the same source.
type Result struct {
	Lines  []string
	Status Status
}

// maxTailBytes bounds how far back a single fetch reads. At 100 lines of
// typical syslog length this is far more than enough.
const maxTailBytes = 256 * 1024

type sourceState struct {
	path        string
	offset      int64
	lastSize    int64
	lastFetch   time.Time
	lastStatus  Status
	primed      bool
}

// Tailer reads the tails of configured log files with time-based caching
// and rotation tolerance. Fetch never returns an error to the caller;
// unreadable sources degrade to an empty result.
type Tailer struct {
	mu            sync.Mutex
	sources       map[string]*sourceState
	cacheInterval time.Duration
	tailLines     int
	logger        *slog.Logger
	now           func() time.Time
}

// NewTailer creates a tailer for the given source id -> path mapping.
func NewTailer(sources map[string]string, cacheInterval time.Duration, tailLines int, logger *slog.Logger) *Tailer {
	states := make(map[string]*sourceState, len(sources))
	for id, path := range sources {
		states[id] = &sourceState{path: path}
	}
	return &Tailer{
		sources:       states,
		cacheInterval: cacheInterval,
		tailLines:     tailLines,
		logger:        logger,
		now:           time.Now,
	}
}

// Fetch returns new lines from the named source. Within the cache
// interval it answers from cache without touching the filesystem, and
// since previously yielded lines are never repeated the cached answer is
// the last status with no lines.
func (t *Tailer) Fetch(sourceID string) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.sources[sourceID]
	if !ok {
		return Result{Status: StatusUnavailable}
	}

	now := t.now()
	if st.primed && now.Sub(st.lastFetch) < t.cacheInterval {
		return Result{Status: st.lastStatus}
	}
	st.lastFetch = now
	st.primed = true

	res := t.read(st)
	st.lastStatus = res.Status
	return res
}

func (t *Tailer) read(st *sourceState) Result {
	info, err := os.Stat(st.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Status: StatusUnavailable}
		}
		return Result{Status: StatusError}
	}

	size := info.Size()
	if size < st.lastSize {
		// Rotation or truncation: start over on the new content.
		t.logger.Info("log source rotated", "path", st.path,
			"old_size", st.lastSize, "new_size", size)
		st.offset = 0
	}
	st.lastSize = size

	if size == st.offset {
		return Result{Status: StatusOK}
	}

	f, err := os.Open(st.path)
	if err != nil {
		return Result{Status: StatusError}
	}
	defer f.Close()

	readFrom := st.offset
	truncatedHead := false
	if size-readFrom > maxTailBytes {
		readFrom = size - maxTailBytes
		truncatedHead = true
	}
	if _, err := f.Seek(readFrom, io.SeekStart); err != nil {
		return Result{Status: StatusError}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return Result{Status: StatusError}
	}
	st.offset = size

	lines := splitLines(data)
	if truncatedHead && len(lines) > 0 {
		// The first line after a mid-file seek is almost certainly partial.
		lines = lines[1:]
	}
	if len(lines) > t.tailLines {
		lines = lines[len(lines)-t.tailLines:]
	}

	return Result{Lines: lines, Status: StatusOK}
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	raw := strings.Split(string(data), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
