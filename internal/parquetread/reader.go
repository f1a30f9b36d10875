package parquetread

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/gyeh/billadj/internal/model"
)

// Reader streams reference-code rows. The schema is checked when the
// Reader is created, so every Reader carries the required columns.
type Reader struct {
	closer io.Closer
	rows   *parquet.GenericReader[model.ReferenceCodeRow]
	schema *parquet.Schema
}

// Open opens the reference-code file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}
	r, err := New(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// New reads a reference-code file of the given size from ra.
func New(ra io.ReaderAt, size int64) (*Reader, error) {
	pf, err := parquet.OpenFile(ra, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	if err := ValidateSchema(pf.Schema()); err != nil {
		return nil, fmt.Errorf("reference schema: %w", err)
	}
	return &Reader{
		rows:   parquet.NewGenericReader[model.ReferenceCodeRow](pf),
		schema: pf.Schema(),
	}, nil
}

// NumRows is the row count recorded in the file metadata.
func (r *Reader) NumRows() int64 {
	return r.rows.NumRows()
}

// Read fills rows and returns io.EOF after the last batch.
func (r *Reader) Read(rows []model.ReferenceCodeRow) (int, error) {
	n, err := r.rows.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("read parquet rows: %w", err)
	}
	return n, err
}

// Schema returns the file schema.
func (r *Reader) Schema() *parquet.Schema {
	return r.schema
}

// Close releases the row reader and, for Open, the file.
func (r *Reader) Close() error {
	err := r.rows.Close()
	if r.closer != nil {
		err = errors.Join(err, r.closer.Close())
	}
	return err
}
