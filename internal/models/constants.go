// Package models contains data types and constants for the check-in API.
package models

// Endpoint paths, relative to the configured base URL
const (
	EndpointLogin     = "/api/login"
	EndpointRegister  = "/api/register"
	EndpointCheckIn   = "/api/check-in"
	EndpointExercises = "/api/exercises"
	EndpointHistory   = "/api/history"
)

// FallbackReply is the assistant text appended when a check-in fails
const FallbackReply = "I apologize, but I encountered an error. Please try again."

// DefaultHeaders returns the headers sent with every request
func DefaultHeaders() map[string]string {
	return map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
		"User-Agent":   "checkin-cli",
	}
}
