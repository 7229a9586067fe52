// Package api provides the authenticated transport for the check-in backend.
package api

// GJSON paths for extracting values from backend responses.
const (
	// Check-in reply
	PathResponse  = "response"
	PathAudio     = "audio"
	PathMoodScore = "mood_score"

	// Login reply
	PathAccessToken = "access_token"

	// Mood history entries (relative to each array element)
	PathTimestamp    = "timestamp"
	PathExerciseType = "exercise_type"

	// Exercise entries (relative to each object value)
	PathTitle       = "title"
	PathDuration    = "duration"
	PathDescription = "description"

	// Error bodies: {"error": ...} from the app, {"msg": ...} from the JWT layer
	PathError   = "error"
	PathMsg     = "msg"
	PathMessage = "message"
)
