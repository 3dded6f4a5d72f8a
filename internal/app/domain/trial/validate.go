package trial

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var trialValidate *validator.Validate

func init() {
	trialValidate = validator.New()
	trialValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = trialValidate.RegisterValidation("trial_source", func(fl validator.FieldLevel) bool {
		return Source(fl.Field().String()).Valid()
	})
	_ = trialValidate.RegisterValidation("trial_command", func(fl validator.FieldLevel) bool {
		return Command(fl.Field().String()).Valid()
	})
	// NaN and infinities cannot be encoded as JSON
	_ = trialValidate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
}

// Draft is a trial as submitted by a client, before defaults are applied.
// Pointer fields distinguish "absent" from a zero value.
type Draft struct {
	Person       *string    `json:"person" validate:"required"`
	Source       string     `json:"source" validate:"required,trial_source"`
	Command      string     `json:"command" validate:"omitempty,trial_command"`
	ResponseTime *float64   `json:"responseTime" validate:"required"`
	Accuracy     *float64   `json:"accuracy" validate:"required"`
	ErrorRate    *float64   `json:"errorRate" validate:"required"`
	Timestamp    *time.Time `json:"timestamp"`
}

// Build validates the draft and returns the trial to persist. An absent
// command becomes CommandUnknown and an absent timestamp becomes now.
func (d Draft) Build(now time.Time) (Trial, error) {
	if err := trialValidate.Struct(d); err != nil {
		return Trial{}, describe(err)
	}
	t := Trial{
		Person:       *d.Person,
		Source:       Source(d.Source),
		Command:      Command(d.Command),
		ResponseTime: *d.ResponseTime,
		Accuracy:     *d.Accuracy,
		ErrorRate:    *d.ErrorRate,
		Timestamp:    now,
	}
	if t.Command == "" {
		t.Command = CommandUnknown
	}
	if d.Timestamp != nil && !d.Timestamp.IsZero() {
		t.Timestamp = *d.Timestamp
	}
	t.Timestamp = t.Timestamp.UTC()
	return t, t.Validate()
}

// Validate checks the invariants every stored trial must satisfy.
func (t Trial) Validate() error {
	if err := trialValidate.Struct(t); err != nil {
		return describe(err)
	}
	return nil
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields []FieldError
}

// FieldError is one failed field constraint.
type FieldError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Reason))
	}
	return "trial validation failed: " + strings.Join(parts, ", ")
}

func describe(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		reason := fmt.Sprintf("failed %q", fe.Tag())
		switch fe.Tag() {
		case "required":
			reason = "is required"
		case "trial_source":
			reason = fmt.Sprintf("%q is not one of %v", fe.Value(), Sources)
		case "trial_command":
			reason = fmt.Sprintf("%q is not a valid command", fe.Value())
		case "finite":
			reason = "must be a finite number"
		}
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Reason: reason})
	}
	return out
}
