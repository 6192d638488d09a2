package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/drippler/drippler"
	"github.com/supabase-community/gotrue-go/types"
)

// The SDK's sign-up and recovery calls take no redirect target, so these two
// endpoints are called directly.

type signUpBody struct {
	Email    string         `json:"email,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type recoverBody struct {
	Email string `json:"email"`
}

func (c *Client) signUp(ctx context.Context, creds Credentials, redirectTo string) (*AuthResult, error) {
	body := signUpBody{
		Email:    creds.Email,
		Phone:    creds.Phone,
		Password: creds.Password,
		Data:     creds.Data,
	}
	raw, err := c.postAuth(ctx, "signup", redirectTo, body)
	if err != nil {
		return nil, err
	}

	// With autoconfirm the response is a session, otherwise the bare user.
	var session types.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, "signUp", err)
	}
	if session.AccessToken != "" {
		s := fromTypesSession(session)
		return &AuthResult{User: s.User.Clone(), Session: s}, nil
	}

	var user types.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, "signUp", err)
	}
	u := fromTypesUser(user)
	return &AuthResult{User: &u}, nil
}

func (c *Client) recover(ctx context.Context, email, redirectTo string) error {
	if email == "" {
		return drippler.Errorf(drippler.KindValidation, "Email is required")
	}
	_, err := c.postAuth(ctx, "recover", redirectTo, recoverBody{Email: email})
	return err
}

func (c *Client) postAuth(ctx context.Context, endpoint, redirectTo string, body any) ([]byte, error) {
	u := c.cfg.URL + "/auth/v1/" + endpoint
	if redirectTo != "" {
		u += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, drippler.Wrap(drippler.KindConnectivity, endpoint, err)
	}
	if resp.StatusCode >= 300 {
		return nil, &drippler.Error{
			Kind: statusKind(resp.StatusCode),
			Op:   endpoint,
			Msg:  authErrorMessage(raw, resp.StatusCode),
		}
	}
	return raw, nil
}

// authErrorMessage extracts the human readable message of an auth error body.
func authErrorMessage(raw []byte, status int) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, s := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if s != "" {
				return s
			}
		}
	}
	return fmt.Sprintf("auth request failed: %d", status)
}
