// Package artifact writes the processed arrays and fitted transformers of a run to the
// output directory.
package artifact

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/malbeclabs/fraudprep/config"
)

const (
	FilePreprocessor = "preprocessor.json"
	FileScaler       = "scaler.json"
	FileManifest     = "manifest.json"
)

// MatrixFile returns the feature matrix file name for a dataset and split,
// e.g. X_fraud_train.csv.
func MatrixFile(dataset, split string) string {
	return fmt.Sprintf("X_%s_%s.csv", dataset, split)
}

// LabelFile returns the label file name for a dataset and split, e.g. y_fraud_test.csv.
func LabelFile(dataset, split string) string {
	return fmt.Sprintf("y_%s_%s.csv", dataset, split)
}

type File struct {
	Name   string `json:"name"`
	Path   string `json:"-"`
	Rows   int    `json:"rows,omitempty"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

type Writer struct {
	log         *slog.Logger
	dir         string
	compression string
	files       []File
}

func NewWriter(log *slog.Logger, dir, compression string) (*Writer, error) {
	if log == nil {
		return nil, fmt.Errorf("log is nil")
	}
	switch compression {
	case "":
		compression = config.CompressionNone
	case config.CompressionNone, config.CompressionGzip, config.CompressionZstd:
	default:
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &Writer{log: log, dir: dir, compression: compression}, nil
}

// Files returns every file written so far, in write order.
func (w *Writer) Files() []File {
	return append([]File(nil), w.files...)
}

// WriteMatrix writes X with a header of column indices.
func (w *Writer) WriteMatrix(name string, X [][]float64) error {
	width := 0
	if len(X) > 0 {
		width = len(X[0])
	}
	header := make([]string, width)
	for i := range header {
		header[i] = strconv.Itoa(i)
	}
	return w.writeCSV(name, header, len(X), func(cw *csv.Writer) error {
		rec := make([]string, width)
		for i, row := range X {
			if len(row) != width {
				return fmt.Errorf("row %d has %d columns, want %d", i, len(row), width)
			}
			for j, v := range row {
				rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteLabels writes y as a single column headed by the label name.
func (w *Writer) WriteLabels(name, label string, y []int) error {
	return w.writeCSV(name, []string{label}, len(y), func(cw *csv.Writer) error {
		rec := make([]string, 1)
		for _, v := range y {
			rec[0] = strconv.Itoa(v)
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteJSON writes v indented. JSON artifacts are never compressed.
func (w *Writer) WriteJSON(name string, v any) error {
	path := filepath.Join(w.dir, name)
	out, err := newSink(path, config.CompressionNone)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return w.finish(out, name, path, 0)
}

func (w *Writer) writeCSV(name string, header []string, rows int, body func(*csv.Writer) error) error {
	path := filepath.Join(w.dir, name) + Suffix(w.compression)
	out, err := newSink(path, w.compression)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(out)
	if err := cw.Write(header); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	if err := body(cw); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to flush %s: %w", name, err)
	}
	return w.finish(out, name+Suffix(w.compression), path, rows)
}

func (w *Writer) finish(out *sink, name, path string, rows int) error {
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	f := File{Name: name, Path: path, Rows: rows, Bytes: out.bytes, SHA256: hex.EncodeToString(out.hash.Sum(nil))}
	w.files = append(w.files, f)
	w.log.Debug("artifact: wrote file", "path", path, "rows", rows, "bytes", f.Bytes)
	return nil
}

// Suffix returns the file name suffix added by a compression mode.
func Suffix(compression string) string {
	switch compression {
	case config.CompressionGzip:
		return ".gz"
	case config.CompressionZstd:
		return ".zst"
	}
	return ""
}

// sink writes through an optional compressor into a file, hashing and counting the bytes
// that reach the file.
type sink struct {
	io.Writer
	file  *os.File
	enc   io.WriteCloser
	hash  hash.Hash
	bytes int64
}

func (s *sink) count(p []byte) (int, error) {
	n, err := s.file.Write(p)
	s.hash.Write(p[:n])
	s.bytes += int64(n)
	return n, err
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func newSink(path, compression string) (*sink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	s := &sink{file: file, hash: sha256.New()}
	raw := writerFunc(s.count)

	switch compression {
	case config.CompressionGzip:
		s.enc = gzip.NewWriter(raw)
	case config.CompressionZstd:
		enc, err := zstd.NewWriter(raw)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		s.enc = enc
	}
	if s.enc != nil {
		s.Writer = s.enc
	} else {
		s.Writer = raw
	}
	return s, nil
}

func (s *sink) Close() error {
	if s.enc != nil {
		if err := s.enc.Close(); err != nil {
			_ = s.file.Close()
			return err
		}
	}
	return s.file.Close()
}

// Open opens an artifact for reading, decompressing by file suffix.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open gzip reader: %w", err)
		}
		return &readCloser{Reader: zr, close: func() error { _ = zr.Close(); return f.Close() }}, nil
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to open zstd reader: %w", err)
		}
		return &readCloser{Reader: zr, close: func() error { zr.Close(); return f.Close() }}, nil
	}
	return f, nil
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }
