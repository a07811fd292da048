package ml

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrMissingField = errors.New("field is required")
	ErrInvalidField = errors.New("field is invalid")
)

// PatientInput is the clinical record posted to /predict. JSON keys follow
// the form the model was trained against, typos included.
type PatientInput struct {
	Age            *Scalar `json:"age"`
	Sex            *Scalar `json:"sex"`
	ChestPainType  *Scalar `json:"CpainType"`
	RestingBP      *Scalar `json:"RestingBP"`
	Cholesterol    *Scalar `json:"Cholesterol"`
	FastingBS      *Scalar `json:"FastingBP"`
	RestingECG     *Scalar `json:"RestingECG"`
	ExerciseAngina *Scalar `json:"Angina"`
	STSlope        *Scalar `json:"St_Slope"`
	MaxHR          *Scalar `json:"latest_maxHR"`
	Oldpeak        *Scalar `json:"OldPeak"`
}

// FieldError reports one offending request field by its JSON key.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

type namedField struct {
	name  string
	value *Scalar
}

// NumericFeatureNames is the order of the raw numeric block that opens the
// feature vector.
func NumericFeatureNames() []string {
	return []string{"age", "RestingBP", "Cholesterol", "FastingBP", "latest_maxHR", "OldPeak"}
}

// CategoricalFeatureNames is the column order the encoder was fitted on.
func CategoricalFeatureNames() []string {
	return []string{"sex", "CpainType", "RestingECG", "Angina", "St_Slope"}
}

func (p PatientInput) numericFields() []namedField {
	return []namedField{
		{"age", p.Age},
		{"RestingBP", p.RestingBP},
		{"Cholesterol", p.Cholesterol},
		{"FastingBP", p.FastingBS},
		{"latest_maxHR", p.MaxHR},
		{"OldPeak", p.Oldpeak},
	}
}

func (p PatientInput) categoricalFields() []namedField {
	return []namedField{
		{"sex", p.Sex},
		{"CpainType", p.ChestPainType},
		{"RestingECG", p.RestingECG},
		{"Angina", p.ExerciseAngina},
		{"St_Slope", p.STSlope},
	}
}

// Validate checks every field and reports all failures at once; use
// multierr.Errors to split the result into FieldErrors.
func (p PatientInput) Validate() error {
	var err error
	for _, f := range p.numericFields() {
		if f.value == nil {
			err = multierr.Append(err, &FieldError{Field: f.name, Err: ErrMissingField})
			continue
		}
		if _, perr := f.value.Float(); perr != nil {
			err = multierr.Append(err, &FieldError{Field: f.name, Err: fmt.Errorf("%w: %v", ErrInvalidField, perr)})
		}
	}
	for _, f := range p.categoricalFields() {
		if f.value == nil {
			err = multierr.Append(err, &FieldError{Field: f.name, Err: ErrMissingField})
		}
	}
	return err
}

// NumericValues returns age, RestingBP, Cholesterol, FastingBP,
// latest_maxHR, OldPeak in that order.
func (p PatientInput) NumericValues() ([]float64, error) {
	fields := p.numericFields()
	values := make([]float64, len(fields))
	for i, f := range fields {
		if f.value == nil {
			return nil, &FieldError{Field: f.name, Err: ErrMissingField}
		}
		v, err := f.value.Float()
		if err != nil {
			return nil, &FieldError{Field: f.name, Err: fmt.Errorf("%w: %v", ErrInvalidField, err)}
		}
		values[i] = v
	}
	return values, nil
}

// CategoricalRow returns sex, CpainType, RestingECG, Angina, St_Slope in
// that order.
func (p PatientInput) CategoricalRow() ([]string, error) {
	fields := p.categoricalFields()
	row := make([]string, len(fields))
	for i, f := range fields {
		if f.value == nil {
			return nil, &FieldError{Field: f.name, Err: ErrMissingField}
		}
		row[i] = f.value.Text()
	}
	return row, nil
}

// AssembleFeatureVector concatenates the numeric block and the encoded
// categorical block. The result is what the classifier was trained on.
func AssembleFeatureVector(numeric, encoded []float64) ([]float64, error) {
	if len(numeric) != len(NumericFeatureNames()) {
		return nil, fmt.Errorf("%w: expected %d numeric features, got %d", ErrFeatureShape, len(NumericFeatureNames()), len(numeric))
	}
	vector := make([]float64, 0, len(numeric)+len(encoded))
	vector = append(vector, numeric...)
	vector = append(vector, encoded...)
	return vector, nil
}

// FeatureVector runs a patient through the encoder and assembles the full
// model input.
func FeatureVector(p PatientInput, enc Encoder) ([]float64, error) {
	numeric, err := p.NumericValues()
	if err != nil {
		return nil, err
	}
	row, err := p.CategoricalRow()
	if err != nil {
		return nil, err
	}
	encoded, err := enc.Transform(row)
	if err != nil {
		return nil, err
	}
	return AssembleFeatureVector(numeric, encoded)
}

// FeatureNames lists the name of every slot produced by FeatureVector for
// the given encoder.
func FeatureNames(enc *OneHotEncoder) []string {
	names := NumericFeatureNames()
	return append(names, enc.FeatureNamesOut()...)
}
