package openground

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// tokenExpirySlack is subtracted from the reported lifetime so a token is
// never presented right at its expiry boundary.
const tokenExpirySlack = 30 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a bearer token for the configured credentials, fetching a new
// one via the client-credentials flow when the cached token is missing or
// close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	if cached, ok := c.tokens.Get(c.cfg.ClientID); ok {
		return cached.(string), nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "openground ")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode/100 != 2 {
		return "", newAPIError("token", resp, b)
	}

	var out tokenResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", fmt.Errorf("token response missing access_token")
	}

	ttl := time.Duration(out.ExpiresIn)*time.Second - tokenExpirySlack
	if ttl <= 0 {
		// Token too short-lived to cache; still usable for this call.
		return out.AccessToken, nil
	}
	c.tokens.Set(c.cfg.ClientID, out.AccessToken, ttl)
	return out.AccessToken, nil
}
