package receiptformat

import (
	"encoding/json"
	"fmt"
	"os"
)

// Parse parses a snapshot from a byte slice
func Parse(data []byte) (*Stack, error) {
	var stack Stack
	if err := json.Unmarshal(data, &stack); err != nil {
		return nil, fmt.Errorf("failed to parse receipt stack: %w", err)
	}

	if err := Validate(&stack); err != nil {
		return nil, err
	}

	return &stack, nil
}

// ParseFile parses a snapshot from disk
func ParseFile(path string) (*Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt stack: %w", err)
	}

	return Parse(data)
}

// ToJSON converts a Stack to JSON bytes
func (s *Stack) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// SaveToFile saves a Stack to a file
func (s *Stack) SaveToFile(path string) error {
	data, err := s.ToJSON()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
