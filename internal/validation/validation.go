// Package validation normalizes and validates user input before it is
// submitted to the shortening service.
package validation

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	httpPrefix  = "http://"
	httpsPrefix = "https://"

	AliasMinLength = 3
	AliasMaxLength = 20
)

var (
	ErrEmptyInput             = errors.New("url is required")
	ErrMalformedURL           = errors.New("please enter a valid url")
	ErrAliasTooShort          = errors.New("alias must be at least 3 characters")
	ErrAliasTooLong           = errors.New("alias must be at most 20 characters")
	ErrAliasInvalidCharacters = errors.New("alias may only contain letters and numbers")
)

// aliasRules are checked in order; the first failing rule names the error.
var aliasRules = []struct {
	tag string
	err error
}{
	{tag: "min=3", err: ErrAliasTooShort},
	{tag: "max=20", err: ErrAliasTooLong},
	{tag: "alphanum", err: ErrAliasInvalidCharacters},
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NormalizeURL prepends https:// to non-empty input that has no http(s) scheme.
func NormalizeURL(input string) string {
	if input == "" || strings.HasPrefix(input, httpPrefix) || strings.HasPrefix(input, httpsPrefix) {
		return input
	}

	return httpsPrefix + input
}

// ValidateURL reports whether input, once normalized, is an absolute URL
// with both a scheme and a host.
func ValidateURL(input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmptyInput
	}

	u, err := url.Parse(NormalizeURL(input))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrMalformedURL
	}

	return nil
}

// ValidateAlias checks an optional custom alias. Empty input is valid.
func ValidateAlias(input string) error {
	if input == "" {
		return nil
	}

	for _, rule := range aliasRules {
		if err := validate.Var(input, rule.tag); err != nil {
			return rule.err
		}
	}

	return nil
}

// FieldError ties a validation failure to the input field it came from.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Result is the outcome of validating one submission.
type Result struct {
	URL      string
	Alias    string
	URLErr   error
	AliasErr error
}

// Valid reports whether both fields passed.
func (r Result) Valid() bool {
	return r.URLErr == nil && r.AliasErr == nil
}

// Err joins every field error, or returns nil when the submission is valid.
func (r Result) Err() error {
	var errs []error

	if r.URLErr != nil {
		errs = append(errs, &FieldError{Field: "url", Err: r.URLErr})
	}

	if r.AliasErr != nil {
		errs = append(errs, &FieldError{Field: "alias", Err: r.AliasErr})
	}

	return errors.Join(errs...)
}

// Validate trims both fields and checks them independently.
// URL holds the normalized URL whether or not it is valid.
func Validate(rawURL, alias string) Result {
	rawURL = strings.TrimSpace(rawURL)
	alias = strings.TrimSpace(alias)

	return Result{
		URL:      NormalizeURL(rawURL),
		Alias:    alias,
		URLErr:   ValidateURL(rawURL),
		AliasErr: ValidateAlias(alias),
	}
}
