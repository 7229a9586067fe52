package api

import (
	"context"
	"sort"
	"time"

	http "github.com/bogdanfinn/fhttp"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/models"
)

// Exercises lists the guided exercises offered by the backend, sorted by key
func (c *Client) Exercises(ctx context.Context, creds Credentials) ([]models.Exercise, error) {
	body, err := c.doJSON(ctx, creds, "exercises", http.MethodGet, models.EndpointExercises, nil)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, apierrors.NewParseError("exercises response is not an object", "")
	}

	var exercises []models.Exercise
	parsed.ForEach(func(key, value gjson.Result) bool {
		exercises = append(exercises, models.Exercise{
			Key:         key.String(),
			Title:       value.Get(PathTitle).String(),
			Duration:    value.Get(PathDuration).String(),
			Description: value.Get(PathDescription).String(),
		})
		return true
	})

	sort.Slice(exercises, func(i, j int) bool {
		return exercises[i].Key < exercises[j].Key
	})
	return exercises, nil
}

// MoodHistory returns the user's recorded check-ins, newest first as sent by
// the backend
func (c *Client) MoodHistory(ctx context.Context, creds Credentials) ([]models.MoodEntry, error) {
	body, err := c.doJSON(ctx, creds, "history", http.MethodGet, models.EndpointHistory, nil)
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, apierrors.NewParseError("history response is not an array", "")
	}

	var entries []models.MoodEntry
	for _, item := range parsed.Array() {
		entry := models.MoodEntry{
			MoodScore:    item.Get(PathMoodScore).Float(),
			ExerciseType: item.Get(PathExerciseType).String(),
		}
		if ts := item.Get(PathTimestamp).String(); ts != "" {
			entry.Timestamp = parseTimestamp(ts)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// parseTimestamp accepts RFC 3339 and the naive ISO form produced by
// datetime.isoformat() without a zone (treated as UTC)
func parseTimestamp(ts string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}
