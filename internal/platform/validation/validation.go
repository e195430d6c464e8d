// Package validation checks single form values against declarative rules.
// Rules are plain data so forms can declare them once and render messages
// inline next to the field that failed. Validation never panics: malformed
// input, and malformed rules, are reported as a failed Result.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar-date format accepted by date rules.
const DateLayout = "2006-01-02"

// engine is safe for concurrent use and caches parsed tags.
var engine = validator.New()

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

// Kind identifies what a Rule checks.
type Kind string

const (
	KindRequired      Kind = "required"
	KindPattern       Kind = "pattern"
	KindNumericRange  Kind = "numericRange"
	KindMinLength     Kind = "minLength"
	KindMaxLength     Kind = "maxLength"
	KindEmail         Kind = "email"
	KindOneOf         Kind = "oneOf"
	KindDateNotFuture Kind = "dateNotFuture"
	KindDateNotBefore Kind = "dateNotBefore"
)

// Rule is a single declarative check. Only the fields relevant to Kind are
// read; Message overrides the default failure message.
type Rule struct {
	Kind    Kind
	Pattern string
	Min     float64
	Max     float64
	Length  int
	Options []string
	Field   string
	Message string
}

func Required(msg string) Rule { return Rule{Kind: KindRequired, Message: msg} }

func Pattern(expr, msg string) Rule { return Rule{Kind: KindPattern, Pattern: expr, Message: msg} }

func NumericRange(min, max float64, msg string) Rule {
	return Rule{Kind: KindNumericRange, Min: min, Max: max, Message: msg}
}

func MinLength(n int, msg string) Rule { return Rule{Kind: KindMinLength, Length: n, Message: msg} }

func MaxLength(n int, msg string) Rule { return Rule{Kind: KindMaxLength, Length: n, Message: msg} }

func Email(msg string) Rule { return Rule{Kind: KindEmail, Message: msg} }

func OneOf(msg string, options ...string) Rule {
	return Rule{Kind: KindOneOf, Options: options, Message: msg}
}

func DateNotFuture(msg string) Rule { return Rule{Kind: KindDateNotFuture, Message: msg} }

// DateNotBefore fails when the value is a date earlier than the date held by
// another field of the same form.
func DateNotBefore(field, msg string) Rule {
	return Rule{Kind: KindDateNotBefore, Field: field, Message: msg}
}

// Result is the outcome of checking one value against one rule.
type Result struct {
	Valid   bool
	Message string
}

func pass() Result { return Result{Valid: true} }

func fail(rule Rule, def string) Result {
	if rule.Message != "" {
		return Result{Message: rule.Message}
	}
	return Result{Message: def}
}

// ---------------------------------------------------------------------------
// Single-value checks
// ---------------------------------------------------------------------------

// Validate checks value against rule using the current date for date rules.
// Cross-field rules pass here because no other field values are available;
// use RuleSet.Validate for those.
func Validate(value string, rule Rule) Result {
	return check(value, rule, nil, time.Now())
}

func check(value string, rule Rule, values map[string]string, now time.Time) Result {
	trimmed := strings.TrimSpace(value)
	if rule.Kind == KindRequired {
		if engine.Var(trimmed, "required") != nil {
			return fail(rule, "This field is required")
		}
		return pass()
	}
	// Optional fields: an empty value satisfies every rule but Required.
	if trimmed == "" {
		return pass()
	}

	switch rule.Kind {
	case KindPattern:
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return fail(Rule{}, fmt.Sprintf("invalid pattern %q", rule.Pattern))
		}
		if !re.MatchString(value) {
			return fail(rule, "Invalid format")
		}
	case KindNumericRange:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return fail(rule, "Must be a number")
		}
		tag := fmt.Sprintf("gte=%g,lte=%g", rule.Min, rule.Max)
		if engine.Var(n, tag) != nil {
			return fail(rule, fmt.Sprintf("Must be between %g and %g", rule.Min, rule.Max))
		}
	case KindMinLength:
		if engine.Var(value, fmt.Sprintf("min=%d", rule.Length)) != nil {
			return fail(rule, fmt.Sprintf("Must be at least %d characters", rule.Length))
		}
	case KindMaxLength:
		if engine.Var(value, fmt.Sprintf("max=%d", rule.Length)) != nil {
			return fail(rule, fmt.Sprintf("Must be at most %d characters", rule.Length))
		}
	case KindEmail:
		if engine.Var(trimmed, "email") != nil {
			return fail(rule, "Invalid email address")
		}
	case KindOneOf:
		for _, opt := range rule.Options {
			if trimmed == opt {
				return pass()
			}
		}
		return fail(rule, fmt.Sprintf("Must be one of %s", strings.Join(rule.Options, ", ")))
	case KindDateNotFuture:
		d, err := time.Parse(DateLayout, trimmed)
		if err != nil {
			return fail(rule, "Invalid date")
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		if d.After(today) {
			return fail(rule, "Date cannot be in the future")
		}
	case KindDateNotBefore:
		d, err := time.Parse(DateLayout, trimmed)
		if err != nil {
			return fail(rule, "Invalid date")
		}
		other, ok := values[rule.Field]
		if !ok {
			return pass()
		}
		bound, err := time.Parse(DateLayout, strings.TrimSpace(other))
		if err != nil {
			// the bound field reports its own malformed value
			return pass()
		}
		if d.Before(bound) {
			return fail(rule, fmt.Sprintf("Must not be before %s", rule.Field))
		}
	default:
		return fail(Rule{}, fmt.Sprintf("unknown rule %q", rule.Kind))
	}
	return pass()
}

// ---------------------------------------------------------------------------
// Rule sets
// ---------------------------------------------------------------------------

// ValidationError is a field-level failure, surfaced next to the field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Errors is the set of field failures of one form, ordered by field name.
type Errors []*ValidationError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Error()
	}
	return strings.Join(parts, "; ")
}

// Field returns the message for field, or "" when it passed.
func (e Errors) Field(field string) string {
	for _, fe := range e {
		if fe.Field == field {
			return fe.Message
		}
	}
	return ""
}

// RuleSet maps field names to an ordered list of rules.
type RuleSet map[string][]Rule

// Validate checks every field of values; the first failing rule of each
// field is reported. A nil return means the form is valid.
func (rs RuleSet) Validate(values map[string]string) Errors {
	return rs.ValidateAt(values, time.Now())
}

// ValidateAt is Validate with an explicit current time for date rules.
func (rs RuleSet) ValidateAt(values map[string]string, now time.Time) Errors {
	fields := make([]string, 0, len(rs))
	for f := range rs {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var errs Errors
	for _, field := range fields {
		value := values[field]
		for _, rule := range rs[field] {
			if res := check(value, rule, values, now); !res.Valid {
				errs = append(errs, &ValidationError{Field: field, Message: res.Message})
				break
			}
		}
	}
	return errs
}

// Err returns errs as an error, or nil when there are none.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
