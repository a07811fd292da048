package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const (
	HandleUnknownError  = "error"
	HandleUnknownIgnore = "ignore"

	DropNone     = ""
	DropFirst    = "first"
	DropIfBinary = "if_binary"
)

// OneHotEncoder is a fitted one-hot transform over a fixed list of
// categorical columns. Each column expands into one slot per category,
// minus the dropped category when Drop is set.
type OneHotEncoder struct {
	Features      []string   `json:"features,omitempty"`
	Categories    [][]string `json:"categories"`
	HandleUnknown string     `json:"handle_unknown,omitempty"`
	Drop          string     `json:"drop,omitempty"`
}

func LoadEncoder(path string) (*OneHotEncoder, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var enc OneHotEncoder
	if err := json.Unmarshal(payload, &enc); err != nil {
		return nil, fmt.Errorf("decode encoder %s: %w", path, err)
	}
	if err := enc.Validate(); err != nil {
		return nil, fmt.Errorf("encoder %s: %w", path, err)
	}
	return &enc, nil
}

func (e *OneHotEncoder) Save(path string) error {
	if err := e.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func (e *OneHotEncoder) Validate() error {
	if len(e.Categories) == 0 {
		return errors.New("encoder has no categories")
	}
	if len(e.Features) != 0 && len(e.Features) != len(e.Categories) {
		return fmt.Errorf("encoder lists %d features but %d category sets", len(e.Features), len(e.Categories))
	}
	switch e.HandleUnknown {
	case "", HandleUnknownError, HandleUnknownIgnore:
	default:
		return fmt.Errorf("unsupported handle_unknown %q", e.HandleUnknown)
	}
	switch e.Drop {
	case DropNone, DropFirst, DropIfBinary:
	default:
		return fmt.Errorf("unsupported drop %q", e.Drop)
	}
	for col, cats := range e.Categories {
		if len(cats) == 0 {
			return fmt.Errorf("column %d has no categories", col)
		}
		seen := make(map[string]bool, len(cats))
		for _, c := range cats {
			if seen[c] {
				return fmt.Errorf("column %d lists category %q twice", col, c)
			}
			seen[c] = true
		}
	}
	return nil
}

func (e *OneHotEncoder) OutputLen() int {
	n := 0
	for col, cats := range e.Categories {
		n += len(cats)
		if e.dropped(col) {
			n--
		}
	}
	return n
}

func (e *OneHotEncoder) Transform(row []string) ([]float64, error) {
	if len(row) != len(e.Categories) {
		return nil, fmt.Errorf("%w: encoder expects %d, got %d", ErrColumnCount, len(e.Categories), len(row))
	}
	out := make([]float64, 0, e.OutputLen())
	for col, value := range row {
		cats := e.Categories[col]
		block := make([]float64, len(cats))
		hit := indexOf(cats, value)
		if hit < 0 && e.HandleUnknown != HandleUnknownIgnore {
			return nil, fmt.Errorf("%w %q in column %d (%s)", ErrUnknownCategory, value, col, e.columnName(col))
		}
		if hit >= 0 {
			block[hit] = 1
		}
		if e.dropped(col) {
			block = block[1:]
		}
		out = append(out, block...)
	}
	return out, nil
}

// FeatureNamesOut names every output slot as <column>_<category>.
func (e *OneHotEncoder) FeatureNamesOut() []string {
	names := make([]string, 0, e.OutputLen())
	for col, cats := range e.Categories {
		start := 0
		if e.dropped(col) {
			start = 1
		}
		for _, c := range cats[start:] {
			names = append(names, e.columnName(col)+"_"+c)
		}
	}
	return names
}

func (e *OneHotEncoder) dropped(col int) bool {
	switch e.Drop {
	case DropFirst:
		return true
	case DropIfBinary:
		return len(e.Categories[col]) == 2
	default:
		return false
	}
}

func (e *OneHotEncoder) columnName(col int) string {
	if col < len(e.Features) {
		return e.Features[col]
	}
	return fmt.Sprintf("x%d", col)
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}
