package common

import "strings"

// Problem identifies a single validation failure reported to the user.
type Problem string

const (
	ProblemMissingEmail      Problem = "missing_email"
	ProblemMissingPassword   Problem = "missing_password"
	ProblemMissingConfirm    Problem = "missing_confirm"
	ProblemEmailTaken        Problem = "email_taken"
	ProblemPasswordMismatch  Problem = "password_mismatch"
	ProblemMissingCredential Problem = "missing_credential"
)

var problemMessages = map[Problem]string{
	ProblemMissingEmail:      "E-mail is required",
	ProblemMissingPassword:   "Password is required",
	ProblemMissingConfirm:    "Confirm Password is required",
	ProblemEmailTaken:        "E-mail already in use, please choose another one",
	ProblemPasswordMismatch:  "Password and its confirmation are different",
	ProblemMissingCredential: "E-mail and Password are required to login in platform.",
}

// Message returns the human readable text for p.
func (p Problem) Message() string {
	if m, ok := problemMessages[p]; ok {
		return m
	}
	return string(p)
}

// ValidationError carries every problem found in a single request.
// It matches ErrValidation with errors.Is.
type ValidationError struct {
	Problems []Problem
}

func NewValidationError(problems ...Problem) *ValidationError {
	return &ValidationError{Problems: problems}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, string(p))
	}
	return "validation error: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Has reports whether p is among the collected problems.
func (e *ValidationError) Has(p Problem) bool {
	for _, x := range e.Problems {
		if x == p {
			return true
		}
	}
	return false
}

// Messages returns the user-facing text of every problem, in order.
func (e *ValidationError) Messages() []string {
	out := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Message())
	}
	return out
}
