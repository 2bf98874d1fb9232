package infrastructure

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"aegis/internal/domain"
)

// WriteHistoryJSONL writes one JSON record per line, zstd-compressed
func WriteHistoryJSONL(w io.Writer, records []domain.HistoryRecord) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			zw.Close()
			return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
	}
	return zw.Close()
}

// ReadHistoryJSONL reads back an export written by WriteHistoryJSONL
func ReadHistoryJSONL(r io.Reader) ([]domain.HistoryRecord, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	var out []domain.HistoryRecord
	dec := json.NewDecoder(zr)
	for {
		var rec domain.HistoryRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ExportHistory writes the records to path as .jsonl.zst
func ExportHistory(path string, records []domain.HistoryRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteHistoryJSONL(file, records); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteListText writes one pattern per line; disabled entries are prefixed
// with '#'
func WriteListText(w io.Writer, entries []domain.ListEntry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		prefix := ""
		if !e.Enabled {
			prefix = "#"
		}
		if _, err := fmt.Fprintf(bw, "%s%s\n", prefix, e.Pattern); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadListText parses the format written by WriteListText; blank lines are
// ignored
func ReadListText(r io.Reader) ([]domain.ListEntry, error) {
	var out []domain.ListEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := domain.ListEntry{Pattern: line, Enabled: true}
		if strings.HasPrefix(line, "#") {
			entry.Pattern = line[1:]
			entry.Enabled = false
		}
		if entry.Pattern != "" {
			out = append(out, entry)
		}
	}
	return out, scanner.Err()
}
