package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Scalar holds one request field exactly as the client sent it: either a
// JSON string or a JSON number. Browser forms post numbers as strings, so
// numeric fields are parsed lazily through Float.
type Scalar struct {
	raw    string
	quoted bool
}

func NumberScalar(v float64) *Scalar {
	return &Scalar{raw: strconv.FormatFloat(v, 'f', -1, 64)}
}

func TextScalar(v string) *Scalar {
	return &Scalar{raw: v, quoted: true}
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty value")
	}
	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = Scalar{raw: text, quoted: true}
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var num json.Number
		if err := json.Unmarshal(data, &num); err != nil {
			return err
		}
		*s = Scalar{raw: num.String()}
		return nil
	default:
		return fmt.Errorf("expected a string or number, got %s", data)
	}
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	if s.quoted {
		return json.Marshal(s.raw)
	}
	return []byte(s.raw), nil
}

// Float parses the value as a finite number.
func (s Scalar) Float() (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s.raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s.raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s.raw)
	}
	return v, nil
}

// Text is the categorical form: NFC-normalized strings, shortest decimal
// form for numbers.
func (s Scalar) Text() string {
	if s.quoted {
		return norm.NFC.String(s.raw)
	}
	if v, err := strconv.ParseFloat(s.raw, 64); err == nil {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return s.raw
}

func (s Scalar) String() string {
	return s.raw
}
