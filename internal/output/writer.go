package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Caia-Tech/bitext-miner/pkg/corpus"
)

// Writer appends corpus pairs to a JSONL file. The file is truncated when the
// writer opens, so every run starts from a clean slate. Appends are
// serialized internally and safe to call from concurrent workers.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	path    string
	count   int64
}

// WriterConfig configures result output
type WriterConfig struct {
	Dir      string `json:"dir" yaml:"dir"`
	Filename string `json:"filename" yaml:"filename"`
}

// DefaultWriterConfig returns default writer configuration
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Dir:      "./output",
		Filename: "english_welsh_pairs.jsonl",
	}
}

// NewWriter creates the output directory if needed and opens the result file,
// truncating any previous contents.
func NewWriter(config *WriterConfig) (*Writer, error) {
	if config == nil {
		config = DefaultWriterConfig()
	}

	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	path := filepath.Join(config.Dir, config.Filename)
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating output file: %w", err)
	}

	// Keep Welsh diacritics and HTML characters as literal UTF-8 bytes
	encoder := json.NewEncoder(file)
	encoder.SetEscapeHTML(false)

	log.Debug().Str("path", path).Msg("Opened result file")

	return &Writer{
		file:    file,
		encoder: encoder,
		path:    path,
	}, nil
}

// Append writes one pair as a single JSON line
func (w *Writer) Append(pair *corpus.Pair) error {
	if err := pair.Validate(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("writer is closed")
	}

	if err := w.encoder.Encode(pair); err != nil {
		return fmt.Errorf("writing pair: %w", err)
	}

	w.count++
	return nil
}

// Count returns the number of pairs written so far
func (w *Writer) Count() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path returns the location of the result file
func (w *Writer) Path() string {
	return w.path
}

// Close flushes and closes the result file. Further appends fail.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	err := w.file.Close()
	w.file = nil

	log.Info().Str("path", w.path).Int64("pairs", w.count).Msg("Result file closed")
	return err
}
