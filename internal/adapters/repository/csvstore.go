package repository

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/okian/trialstats/internal/domain/model"
)

// CSVStore keeps rows in a flat CSV file whose first line is the header.
//
// Each row is encoded in full and handed to a single write on an O_APPEND
// descriptor, then fsynced. The RWMutex keeps readers from observing a
// row that is still being written. A file whose header lacks canonical
// columns is widened once, before the first append to it.
type CSVStore struct {
	path string

	mu     sync.RWMutex
	header []string // header of the file on disk, nil until known
}

// NewCSVStore prepares a CSV store at path, creating parent directories.
func NewCSVStore(path string) (*CSVStore, error) {
	if path == "" {
		return nil, ErrMissingPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &CSVStore{path: filepath.Clean(path)}, nil
}

func (s *CSVStore) Driver() string { return DriverCSV }

func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) Append(ctx context.Context, row model.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.header == nil {
		h, err := s.readHeader()
		if err != nil {
			return err
		}
		s.header = h
	}
	if s.header != nil {
		if missing := missingFields(s.header); len(missing) > 0 {
			if err := s.widen(missing); err != nil {
				return err
			}
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	fresh := s.header == nil
	if fresh {
		if err := w.Write(model.Fields()); err != nil {
			return err
		}
	}
	if err := w.Write(s.project(row)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	if fresh {
		s.header = model.Fields()
	}
	return nil
}

// project lays a canonical row out under the on-disk header.
func (s *CSVStore) project(row model.Row) []string {
	if s.header == nil {
		return row
	}
	out := make([]string, len(s.header))
	for i, name := range s.header {
		out[i] = row.Get(name)
	}
	return out
}

// widen rewrites a file written under an older header so it carries every
// canonical column. Existing columns keep their position; missing ones are
// appended and old rows padded with "". The new file replaces the old one
// by rename. Callers hold s.mu.
func (s *CSVStore) widen(missing []string) error {
	in, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	r := csv.NewReader(in)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	_ = in.Close()
	if err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}

	header := append(append([]string(nil), s.header...), missing...)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", s.path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		_ = tmp.Close()
		return err
	}
	for _, rec := range records[1:] {
		padded := make([]string, len(header))
		copy(padded, rec)
		if err := w.Write(padded); err != nil {
			_ = tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	s.header = header
	return nil
}

// missingFields lists canonical fields absent from header, in canonical order.
func missingFields(header []string) []string {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	var out []string
	for _, f := range model.Fields() {
		if _, ok := have[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

func (s *CSVStore) ReadAll(ctx context.Context) (model.Table, error) {
	if err := ctx.Err(); err != nil {
		return model.Table{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Table{}, ErrEmpty
	}
	if err != nil {
		return model.Table{}, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return model.Table{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if len(records) < 2 {
		return model.Table{}, ErrEmpty
	}
	return model.Table{Header: records[0], Rows: records[1:]}, nil
}

// readHeader returns the first record of the store file, or nil when the
// file is missing or empty.
func (s *CSVStore) readHeader() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	h, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return h, nil
}
