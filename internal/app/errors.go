package app

import "fmt"

// DomainError is the boundary error type: every failure a handler can return
// maps to one of these. Message is the short summary; Advice, when set,
// carries the longer remediation text surfaced to the operator.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Advice  string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func domainErrorWithAdvice(status int, code, message, advice string, details any) *DomainError {
	err := domainError(status, code, message, details)
	err.Advice = advice
	return err
}
