package trees

import "regexp"

// FieldError reports a single client-fixable validation problem.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// validateSubmission checks that the write carries an authenticated actor
// with a well-formed email. Descriptive fields are never inspected; a
// non-empty result blocks the write but is always returned, never raised.
func validateSubmission(actor Actor) []FieldError {
	var fieldErrors []FieldError

	if actor.ID == 0 {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   "authentication",
			Message: "User authentication required",
		})
	}

	if actor.Email != "" && !emailPattern.MatchString(actor.Email) {
		fieldErrors = append(fieldErrors, FieldError{
			Field:   "userEmail",
			Message: "Invalid email format",
		})
	}

	return fieldErrors
}
