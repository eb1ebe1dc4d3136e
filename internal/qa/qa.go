// Package qa answers known questions from a curated YAML file before the LLM
// is consulted. Adopted replies are written back into the same file.
package qa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Pair is one curated question and answer.
type Pair struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Matcher is the lookup surface the dispatcher needs.
type Matcher interface {
	Match(question string) (string, bool)
}

// Book is a Q&A file held in memory.
type Book struct {
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	pairs []Pair
	index map[string]int
}

var _ Matcher = (*Book)(nil)

// Open loads path. A missing file yields an empty book that is created on
// the first Record.
func Open(path string, logger zerolog.Logger) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("qa: file path required")
	}
	b := &Book{path: path, logger: logger.With().Str("component", "qa").Logger()}
	if err := b.Reload(); err != nil {
		return nil, err
	}
	return b, nil
}

// Path returns the backing file.
func (b *Book) Path() string { return b.path }

// Len returns the number of pairs.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pairs)
}

// Reload re-reads the file.
func (b *Book) Reload() error {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		b.set(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("qa: read %s: %w", b.path, err)
	}
	var pairs []Pair
	if err := yaml.Unmarshal(raw, &pairs); err != nil {
		return fmt.Errorf("qa: parse %s: %w", b.path, err)
	}
	b.set(pairs)
	return nil
}

func (b *Book) set(pairs []Pair) {
	index := make(map[string]int, len(pairs))
	kept := pairs[:0]
	for _, p := range pairs {
		key := normalize(p.Question)
		if key == "" || strings.TrimSpace(p.Answer) == "" {
			continue
		}
		if i, ok := index[key]; ok {
			kept[i] = p
			continue
		}
		index[key] = len(kept)
		kept = append(kept, p)
	}
	b.mu.Lock()
	b.pairs = kept
	b.index = index
	b.mu.Unlock()
}

// Match returns the answer for question. Exact matches win; otherwise the
// longest curated question contained in, or containing, the query is used.
func (b *Book) Match(question string) (string, bool) {
	key := normalize(question)
	if key == "" {
		return "", false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i, ok := b.index[key]; ok {
		return b.pairs[i].Answer, true
	}
	if utf8.RuneCountInString(key) < 2 {
		return "", false
	}
	best, bestLen := -1, 0
	for k, i := range b.index {
		if utf8.RuneCountInString(k) < 2 {
			continue
		}
		if strings.Contains(key, k) || strings.Contains(k, key) {
			if n := utf8.RuneCountInString(k); n > bestLen || (n == bestLen && i < best) {
				best, bestLen = i, n
			}
		}
	}
	if best < 0 {
		return "", false
	}
	return b.pairs[best].Answer, true
}

// Record adds or replaces the answer for question and rewrites the file.
func (b *Book) Record(question, answer string) error {
	key := normalize(question)
	if key == "" || strings.TrimSpace(answer) == "" {
		return errors.New("qa: question and answer required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	pairs := append([]Pair(nil), b.pairs...)
	if i, ok := b.index[key]; ok {
		pairs[i].Answer = answer
	} else {
		pairs = append(pairs, Pair{Question: strings.TrimSpace(question), Answer: answer})
	}
	if err := writeAtomic(b.path, pairs); err != nil {
		return err
	}
	b.pairs = pairs
	if _, ok := b.index[key]; !ok {
		b.index[key] = len(pairs) - 1
	}
	return nil
}

func writeAtomic(path string, pairs []Pair) error {
	raw, err := yaml.Marshal(pairs)
	if err != nil {
		return fmt.Errorf("qa: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("qa: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".qa-*.yaml")
	if err != nil {
		return fmt.Errorf("qa: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("qa: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("qa: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("qa: replace %s: %w", path, err)
	}
	return nil
}

// Watch reloads the book whenever the file changes until ctx is done.
func (b *Book) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("qa: watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so atomic replacements are seen.
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("qa: create directory: %w", err)
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("qa: watch %s: %w", dir, err)
	}
	target := filepath.Clean(b.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := b.Reload(); err != nil {
				b.logger.Warn().Err(err).Msg("reload failed, keeping previous entries")
				continue
			}
			b.logger.Info().Int("pairs", b.Len()).Msg("reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			b.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

func normalize(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	return sb.String()
}
