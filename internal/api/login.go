package api

import (
	"context"
	"fmt"
	"net/http"
)

// LoginPath is the token endpoint relative to the base URL
const LoginPath = "/token/"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access string `json:"access"`
}

// Login exchanges credentials for a bearer token. It does not touch the
// session; the caller stores the token through the session's Login.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, LoginPath, "", loginRequest{Username: username, Password: password})
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", newRequestFailed(status, body)
	}

	var resp loginResponse
	if err := DecodeInto(body, &resp); err != nil {
		return "", err
	}
	if resp.Access == "" {
		return "", fmt.Errorf("failed to log in: response has no access token")
	}
	return resp.Access, nil
}
