package schema

import (
	"fmt"

	"github.com/aretw0/cadence/pkg/domain"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "int", "bool?").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// Optional marks types whose field may be absent.
type optional interface {
	optional() bool
}

// BoolType validates boolean values.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

func (t *BoolType) Validate(value any) error {
	if _, ok := value.(bool); !ok {
		return fmt.Errorf("expected bool, got %T", value)
	}
	return nil
}

// IntType validates integral values of any numeric shape.
type IntType struct {
	min *int
}

func (t *IntType) Name() string {
	if t.min != nil && *t.min == 1 {
		return "positive_int"
	}
	return "int"
}

func (t *IntType) Validate(value any) error {
	i, err := domain.ToInt(value)
	if err != nil {
		return err
	}
	if t.min != nil && i < *t.min {
		return fmt.Errorf("must be >= %d, got %d", *t.min, i)
	}
	return nil
}

// FloatType validates numeric values.
type FloatType struct{}

func (t *FloatType) Name() string { return "float" }

func (t *FloatType) Validate(value any) error {
	_, err := domain.ToFloat(value)
	return err
}

// StringType validates string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	if _, ok := value.(string); !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	return nil
}

// OptionalType allows the field to be missing; present values must match Inner.
type OptionalType struct {
	Inner Type
}

func (t *OptionalType) Name() string         { return t.Inner.Name() + "?" }
func (t *OptionalType) Validate(v any) error { return t.Inner.Validate(v) }
func (t *OptionalType) optional() bool       { return true }

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// Bool creates a boolean type validator.
func Bool() Type { return &BoolType{} }

// Int creates an integer type validator.
func Int() Type { return &IntType{} }

// PositiveInt creates an integer validator that rejects values below 1.
func PositiveInt() Type {
	one := 1
	return &IntType{min: &one}
}

// Float creates a numeric type validator.
func Float() Type { return &FloatType{} }

// String creates a string type validator.
func String() Type { return &StringType{} }

// Optional wraps t so a missing field is accepted.
func Optional(t Type) Type { return &OptionalType{Inner: t} }

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

func isOptional(t Type) bool {
	o, ok := t.(optional)
	return ok && o.optional()
}
