package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes is the size at which a day's log rolls to a new file.
const DefaultMaxBytes int64 = 300 << 20

// RotatingWriter writes to files that rotate daily and when exceeding max size.
//
// A base path of logs/fay.log produces logs/fay-2025-10-26.log, then
// logs/fay-2025-10-26-2.log once MaxBytes is reached. The base path itself
// is kept as a link to the file currently written.
type RotatingWriter struct {
	BasePath string
	MaxBytes int64

	mu    sync.Mutex
	now   func() time.Time
	day   string
	index int
	file  *os.File
	size  int64
}

// NewRotatingWriter opens basePath for writing. A basePath of "-" discards
// everything.
func NewRotatingWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return nopWriteCloser{w: io.Discard}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	rw := &RotatingWriter{BasePath: basePath, MaxBytes: maxBytes, now: time.Now}
	if err := rw.rotate(0); err != nil {
		return nil, err
	}
	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotate(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Current returns the path of the file being written.
func (w *RotatingWriter) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

func (w *RotatingWriter) rotate(incoming int64) error {
	// UTC days keep file names stable across DST changes.
	today := w.now().UTC().Format("2006-01-02")
	switch {
	case w.file == nil || w.day != today:
		w.day, w.index = today, 1
	case w.size > 0 && w.size+incoming > w.MaxBytes:
		w.index++
	default:
		return nil
	}
	return w.open()
}

func (w *RotatingWriter) filename() string {
	dir, name := filepath.Split(w.BasePath)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	if w.index > 1 {
		return filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", stem, w.day, w.index, ext))
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, w.day, ext))
}

func (w *RotatingWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	if dir := filepath.Dir(w.BasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	path := w.filename()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	w.size = 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	w.file = f
	w.link(path)
	return nil
}

// link points BasePath at target: a relative symlink, else a hard link,
// else a text file naming the target.
func (w *RotatingWriter) link(target string) {
	base := w.BasePath
	rel := filepath.Base(target)
	if info, err := os.Lstat(base); err == nil {
		if info.Mode()&os.ModeSymlink != 0 {
			if dest, err := os.Readlink(base); err == nil && dest == rel {
				return
			}
		}
		_ = os.Remove(base)
	}
	if os.Symlink(rel, base) == nil {
		return
	}
	if os.Link(target, base) == nil {
		return
	}
	_ = os.WriteFile(base, []byte("current log file: "+target+"\n"), 0o644)
}

type nopWriteCloser struct{ w io.Writer }

func (n nopWriteCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopWriteCloser) Close() error                { return nil }
