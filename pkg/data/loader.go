package data

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extension returns the lowercase file extension without the leading dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// LoadFiles builds a dataset from local per-split files. All files must share
// one extension; that is validated up front by config resolution, but checked
// again here since this is the last line before I/O.
func LoadFiles(files map[string]string) (*Dataset, error) {
	ext := ""
	for _, path := range files {
		e := Extension(path)
		if ext == "" {
			ext = e
		} else if e != ext {
			return nil, fmt.Errorf("data: split files must share one extension, got %q and %q", ext, e)
		}
	}

	ds := &Dataset{Splits: map[string]*Split{}}
	for name, path := range files {
		split, err := loadFile(name, path)
		if err != nil {
			return nil, err
		}
		ds.Splits[name] = split
	}
	return ds, nil
}

func loadFile(splitName, path string) (*Split, error) {
	switch Extension(path) {
	case "csv":
		return loadCSV(splitName, path)
	case "json":
		return loadJSON(splitName, path)
	case "jsonl":
		return loadJSONL(splitName, path)
	default:
		return nil, fmt.Errorf("data: %s: unsupported format, want csv, json, or jsonl", path)
	}
}

func loadCSV(splitName, path string) (*Split, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("data: %s: reading header: %w", path, err)
	}

	split := &Split{Name: splitName, Columns: header}
	for {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("data: %s: %w", path, err)
		}
		example := make(Example, len(header))
		for i, column := range header {
			if i < len(record) {
				example[column] = record[i]
			}
		}
		split.Examples = append(split.Examples, example)
	}
	return split, nil
}

func loadJSON(splitName, path string) (*Split, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rows []map[string]any
	if err := json.NewDecoder(file).Decode(&rows); err != nil {
		return nil, fmt.Errorf("data: %s: %w", path, err)
	}
	return splitFromRows(splitName, rows)
}

func loadJSONL(splitName, path string) (*Split, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 1024*1024)

	var rows []map[string]any
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, fmt.Errorf("data: %s: %w", path, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("data: %s: %w", path, err)
	}
	return splitFromRows(splitName, rows)
}

func splitFromRows(splitName string, rows []map[string]any) (*Split, error) {
	columns := map[string]struct{}{}
	split := &Split{Name: splitName}
	for _, row := range rows {
		example := make(Example, len(row))
		for k, v := range row {
			columns[k] = struct{}{}
			example[k] = stringify(v)
		}
		split.Examples = append(split.Examples, example)
	}
	for column := range columns {
		split.Columns = append(split.Columns, column)
	}
	sort.Strings(split.Columns)
	return split, nil
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%g", value)
	case bool:
		return fmt.Sprintf("%t", value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}
