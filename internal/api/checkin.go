package api

import (
	"context"
	"fmt"
	"strings"

	http "github.com/bogdanfinn/fhttp"
	"github.com/tidwall/gjson"

	apierrors "github.com/diogo/checkin/internal/errors"
	"github.com/diogo/checkin/internal/models"
)

// CheckIn sends one user utterance and returns the assistant's reply
func (c *Client) CheckIn(ctx context.Context, creds Credentials, message string) (*models.CheckInResponse, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, apierrors.ErrEmptyTranscript
	}

	body, err := c.doJSON(ctx, creds, "check-in", http.MethodPost, models.EndpointCheckIn,
		models.CheckInRequest{Message: message})
	if err != nil {
		return nil, err
	}

	return parseCheckInResponse(body)
}

// parseCheckInResponse extracts the reply text, audio and mood score
func parseCheckInResponse(body []byte) (*models.CheckInResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, apierrors.NewParseError("check-in response is not valid JSON", "")
	}

	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, apierrors.NewParseError("check-in response is not an object", "")
	}

	text := parsed.Get(PathResponse)
	if text.Type != gjson.String {
		return nil, apierrors.NewParseError("missing reply text", PathResponse)
	}

	out := &models.CheckInResponse{Response: text.String()}

	switch audio := parsed.Get(PathAudio); audio.Type {
	case gjson.String:
		out.Audio = strings.TrimSpace(audio.String())
	case gjson.Null:
	default:
		return nil, apierrors.NewParseError(fmt.Sprintf("audio must be a base64 string, got %s", audio.Type), PathAudio)
	}

	if score := parsed.Get(PathMoodScore); score.Type == gjson.Number {
		v := score.Float()
		out.MoodScore = &v
	}

	return out, nil
}
