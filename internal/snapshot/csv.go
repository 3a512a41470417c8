package snapshot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// LoadDir builds a store from every .csv file in dir. Each file is one table named after
// the file; the first record is the header and empty cells are NULL.
func LoadDir(dir string, logger *logrus.Logger) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	s := New(filepath.Base(filepath.Clean(dir)), logger)
	for _, entry := range entries {
		if entry.IsDir() || strings.ToLower(filepath.Ext(entry.Name())) != ".csv" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		t, err := ReadTable(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())), f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		s.AddTable(t)
		logger.Infof("Loaded table %s from %s (%d rows, %d columns)", t.Name, path, t.RowCount(), len(t.Columns))
	}
	return s, nil
}

// ReadTable parses one CSV table and infers the semantic type of every column
func ReadTable(name string, r io.Reader) (*models.Table, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header row")
	}

	t, err := models.TableFromRecords(name, records[0], records[1:])
	if err != nil {
		return nil, err
	}
	t.Source = models.InMemorySnapshot
	return t, nil
}

// WriteTable writes the visible columns of a table as CSV
func WriteTable(t *models.Table, w io.Writer) error {
	writer := csv.NewWriter(w)

	var idx []int
	var header []string
	for i, c := range t.Columns {
		if !c.Hidden {
			idx = append(idx, i)
			header = append(header, c.Name)
		}
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	record := make([]string, len(idx))
	for _, row := range t.Rows {
		for j, i := range idx {
			record[j] = models.FormatValue(row[i])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportDir writes every table of the store to dir as <table>.csv
func (s *Store) ExportDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	s.mu.RLock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		t, err := s.get(name)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, name+".csv")
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := WriteTable(t, f); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		s.Logger.Infof("Exported table %s to %s", name, path)
	}
	return nil
}
