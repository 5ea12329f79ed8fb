// Package csv loads case rows from a CSV file. The header row names the
// columns; a row's id is its 1-based position among the data rows.
package csv

import (
	"context"
	stdcsv "encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/tombee/chord/pkg/errors"
	"github.com/tombee/chord/pkg/load"
)

// Loader reads rows from a CSV file.
type Loader struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	reader *stdcsv.Reader
	header []string
	row    int
}

var _ load.Loader = (*Loader)(nil)

// Open opens path and reads its header.
func Open(path string) (*Loader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "case file", ID: path}
		}
		return nil, &errors.DataSourceError{Code: errors.CodeDataSource, Reason: "cannot open " + path, Cause: err}
	}
	l := &Loader{path: path, file: f}
	if err := l.rewind(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// Header returns the column names.
func (l *Loader) Header() []string {
	return append([]string(nil), l.header...)
}

// Load implements load.Loader.
func (l *Loader) Load(ctx context.Context, n int) ([]load.Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows := make([]load.Row, 0, n)
	for len(rows) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := l.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &errors.DataSourceError{Code: errors.CodeDataSource, Reason: fmt.Sprintf("%s: bad row", l.path), Cause: err}
		}
		l.row++
		data := make(map[string]interface{}, len(l.header))
		for i, col := range l.header {
			data[col] = record[i]
		}
		rows = append(rows, load.Row{ID: strconv.Itoa(l.row), Data: data})
	}
	return rows, nil
}

// Reset implements load.Loader.
func (l *Loader) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rewind()
}

// Close closes the file.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Loader) rewind() error {
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return &errors.DataSourceError{Code: errors.CodeDataSource, Reason: "cannot rewind " + l.path, Cause: err}
	}
	l.reader = stdcsv.NewReader(l.file)
	l.row = 0

	header, err := l.reader.Read()
	if err == io.EOF {
		return &errors.DataSourceError{Code: errors.CodeDataSource, Reason: l.path + ": missing header row"}
	}
	if err != nil {
		return &errors.DataSourceError{Code: errors.CodeDataSource, Reason: l.path + ": bad header", Cause: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]bool, len(header))
	for _, col := range header {
		if col == "" || seen[col] {
			return &errors.DataSourceError{Code: errors.CodeDataSource, Reason: fmt.Sprintf("%s: empty or duplicate column %q", l.path, col)}
		}
		seen[col] = true
	}
	l.header = header
	return nil
}
