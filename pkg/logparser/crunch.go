package logparser

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineSize bounds a single log line. Lines carrying large stacks or
// screenshots can be far beyond bufio's 64KiB default.
const maxLineSize = 64 * 1024 * 1024

// Crunch splits raw log text into lines, decodes every non-empty line and
// returns the kept records in input order. Invalid JSON, or a kept record
// whose fields do not decode, aborts the whole operation with a
// *MalformedLogError. Other records are dropped silently.
func Crunch(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		records []Record
		lineNo  int
	)

	for scanner.Scan() {
		lineNo++

		line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))
		if len(line) == 0 {
			continue
		}

		rec, ok, err := decodeLine(line)
		if err != nil {
			return nil, &MalformedLogError{Line: lineNo, Err: err}
		}

		if ok {
			records = append(records, rec)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &MalformedLogError{Line: lineNo + 1, Err: err}
	}

	return records, nil
}

// CrunchBytes is Crunch over an in-memory log.
func CrunchBytes(data []byte) ([]Record, error) {
	return Crunch(bytes.NewReader(data))
}

// lineHeader holds the fields Keep looks at. They are decoded loosely so
// that irrelevant records with unexpected field types are dropped rather
// than rejected.
type lineHeader struct {
	Action any `json:"action"`
	Level  any `json:"level"`
}

// decodeLine decodes one line. Valid JSON that is not an object, or an
// object Keep rejects, is reported as not ok. Only kept records are decoded
// into a Record, so type errors surface for those alone.
func decodeLine(line []byte) (Record, bool, error) {
	var rec Record

	if !json.Valid(line) {
		return rec, false, fmt.Errorf("invalid JSON")
	}

	if trimmed := bytes.TrimLeft(line, " \t\r\n"); trimmed[0] != '{' {
		return rec, false, nil
	}

	var header lineHeader
	if err := json.Unmarshal(line, &header); err != nil {
		return rec, false, fmt.Errorf("decoding record: %w", err)
	}

	action, _ := header.Action.(string)
	level, _ := header.Level.(string)

	if !Keep(Record{Action: action, Level: level}) {
		return rec, false, nil
	}

	if err := json.Unmarshal(line, &rec); err != nil {
		return rec, false, fmt.Errorf("decoding record: %w", err)
	}

	return rec, true, nil
}
