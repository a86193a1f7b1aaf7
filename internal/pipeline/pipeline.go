// Package pipeline provides helpers for reading and writing room category
// streams in JSONL format, the canonical pipe and export format. Each line
// is one room category in the backend's wire shape.
package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/derickschaefer/ratecal/internal/model"
)

// ReadRooms reads JSONL room categories from r.
// Blank lines and lines starting with // are skipped.
func ReadRooms(r io.Reader) ([]model.RoomCategory, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)

	var rooms []model.RoomCategory
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec model.WireRoom
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		if rec.ID == "" {
			return nil, fmt.Errorf("line %d: room category without id", lineNum)
		}
		room, err := model.FromWire(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		rooms = append(rooms, room)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(rooms) == 0 {
		return nil, fmt.Errorf("no room categories read from input (is it empty?)")
	}
	return rooms, nil
}

// ReadFile reads a JSONL file of room categories.
func ReadFile(path string) ([]model.RoomCategory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rooms, err := ReadRooms(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rooms, nil
}

// WriteJSONL writes room categories as JSONL to w.
func WriteJSONL(w io.Writer, rooms []model.RoomCategory) error {
	enc := json.NewEncoder(w)
	for _, room := range rooms {
		if err := enc.Encode(model.ToWire(room)); err != nil {
			return err
		}
	}
	return nil
}

// IsTTY returns true if stdout is a terminal (not a pipe).
func IsTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
