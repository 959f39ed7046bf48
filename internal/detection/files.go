package detection

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Decode reads a JSON array of candidates.
func Decode(r io.Reader) ([]Candidate, error) {
	var out []Candidate
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		if err == io.EOF {
			return []Candidate{}, nil
		}
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}
	if out == nil {
		out = []Candidate{}
	}
	return out, nil
}

// DecodeString parses a JSON array of candidates held in a string. An empty
// string is an empty list.
func DecodeString(s string) ([]Candidate, error) {
	if s == "" {
		return []Candidate{}, nil
	}
	var out []Candidate
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}
	if out == nil {
		out = []Candidate{}
	}
	return out, nil
}

// ReadFile loads a candidate list from a JSON file. An empty path is an
// empty list, so optional detector outputs can be passed straight through.
func ReadFile(path string) ([]Candidate, error) {
	if path == "" {
		return []Candidate{}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open candidate file: %w", err)
	}
	defer file.Close()

	cands, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cands, nil
}

// Encode writes candidates as an indented JSON array.
func Encode(w io.Writer, cands []Candidate) error {
	if cands == nil {
		cands = []Candidate{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cands); err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}
	return nil
}
