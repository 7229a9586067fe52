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

// Login exchanges username and password for an access token. Any failure is
// reported as ErrInvalidCredentials with the cause attached.
func (c *Client) Login(ctx context.Context, creds Credentials, username, password string) (string, error) {
	body, err := c.doJSON(ctx, creds, "login", http.MethodPost, models.EndpointLogin,
		models.Credentials{Username: username, Password: password})
	if err != nil {
		return "", fmt.Errorf("%w: %w", apierrors.ErrInvalidCredentials, err)
	}

	token := gjson.GetBytes(body, PathAccessToken)
	if token.Type != gjson.String || strings.TrimSpace(token.String()) == "" {
		return "", fmt.Errorf("%w: %w", apierrors.ErrInvalidCredentials,
			apierrors.NewParseError("missing access token", PathAccessToken))
	}

	return strings.TrimSpace(token.String()), nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, creds Credentials, username, password string) error {
	_, err := c.doJSON(ctx, creds, "register", http.MethodPost, models.EndpointRegister,
		models.Credentials{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("%w: %w", apierrors.ErrRegistrationFailed, err)
	}
	return nil
}
