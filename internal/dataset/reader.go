// internal/dataset/reader.go
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Supported dataset file extensions
var supportedExts = []string{".csv", ".csv.gz", ".csv.zst", ".csv.sz"}

// IsDatasetFile reports whether name looks like a readable dataset
func IsDatasetFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range supportedExts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Stem strips directory and dataset extensions from name
func Stem(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	lower := strings.ToLower(base)
	for i := len(supportedExts) - 1; i >= 0; i-- {
		if strings.HasSuffix(lower, supportedExts[i]) {
			return base[:len(base)-len(supportedExts[i])]
		}
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r *readCloser) Close() error { return r.close() }

// Decompress wraps rc with a decoder chosen by the file extension of name
func Decompress(name string, rc io.ReadCloser) (io.ReadCloser, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(rc)
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("dataset: open gzip: %w", err)
		}
		return &readCloser{Reader: gz, close: func() error {
			return errors.Join(gz.Close(), rc.Close())
		}}, nil

	case strings.HasSuffix(lower, ".zst"):
		dec, err := zstd.NewReader(rc, zstd.WithDecoderMaxMemory(256*1024*1024))
		if err != nil {
			_ = rc.Close()
			return nil, fmt.Errorf("dataset: open zstd: %w", err)
		}
		return &readCloser{Reader: dec, close: func() error {
			dec.Close()
			return rc.Close()
		}}, nil

	case strings.HasSuffix(lower, ".sz"):
		return &readCloser{Reader: snappy.NewReader(rc), close: rc.Close}, nil

	default:
		return rc, nil
	}
}

// ReadTable parses a CSV stream. Short or long records are tolerated.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	table := &Table{Header: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset: read record %d: %w", len(table.Records)+1, err)
		}
		table.Records = append(table.Records, record)
	}
	return table, nil
}

// WriteTable writes header and records as CSV
func WriteTable(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Records); err != nil {
		return err
	}
	return cw.Error()
}
