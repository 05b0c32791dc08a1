package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed lead data.
	ErrValidation = errors.New("validation error")

	// ErrConfiguration marks a broken rule set or action table.
	ErrConfiguration = errors.New("configuration error")
)

// ValidationError identifies the lead that could not be analysed.
type ValidationError struct {
	LeadID string `json:"leadId"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.LeadID == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: lead %s: %s", e.LeadID, e.Reason)
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a ValidationError with a formatted reason.
func NewValidationError(leadID, format string, args ...any) *ValidationError {
	return &ValidationError{LeadID: leadID, Reason: fmt.Sprintf(format, args...)}
}

// ConfigurationError reports a rule set or recommendation table that
// cannot be used. It is always fatal for the whole analysis call.
type ConfigurationError struct {
	RuleID string `json:"ruleId,omitempty"`
	Reason string `json:"reason"`
}

func (e *ConfigurationError) Error() string {
	if e.RuleID == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: rule %s: %s", e.RuleID, e.Reason)
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigurationError creates a ConfigurationError with a formatted reason.
func NewConfigurationError(ruleID, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{RuleID: ruleID, Reason: fmt.Sprintf(format, args...)}
}
