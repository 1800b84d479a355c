package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/telekom/azauth/pkg/authflow"
)

const (
	deviceCodeGrantType   = "urn:ietf:params:oauth:grant-type:device_code"
	defaultDeviceInterval = 5 * time.Second
	slowDownStep          = 5 * time.Second
)

type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	Message                 string `json:"message"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// DeviceCode runs the device authorization grant (RFC 8628). prompt is
// called once with the code the user has to enter.
func (c *OIDCClient) DeviceCode(ctx context.Context, scopes []string, prompt func(DeviceCodePrompt)) (*authflow.Token, error) {
	const op = "devicecode"
	ep, err := c.endpoints(ctx)
	if err != nil {
		return nil, classify(op, err)
	}
	if ep.DeviceAuthURL == "" {
		return nil, authflow.NewAuthError(authflow.KindClient, op, errors.New("device authorization endpoint not advertised"))
	}
	if ep.TokenURL == "" {
		return nil, authflow.NewAuthError(authflow.KindClient, op, errors.New("token endpoint not advertised"))
	}
	scope := strings.Join(withOIDCScopes(scopes), " ")

	device, err := c.requestDeviceCode(ctx, ep.DeviceAuthURL, scope)
	if err != nil {
		return nil, classify(op, err)
	}

	expiresIn := time.Duration(device.ExpiresIn) * time.Second
	message := device.Message
	if message == "" {
		message = fmt.Sprintf("To sign in, use a web browser to open the page %s and enter the code %s to authenticate.", device.VerificationURI, device.UserCode)
	}
	if prompt != nil {
		prompt(DeviceCodePrompt{
			UserCode:        device.UserCode,
			VerificationURI: device.VerificationURI,
			Message:         message,
			ExpiresIn:       expiresIn,
		})
	}

	interval := time.Duration(device.Interval) * time.Second
	step := slowDownStep
	if c.cfg.DevicePollInterval > 0 {
		interval = c.cfg.DevicePollInterval
		step = c.cfg.DevicePollInterval
	}
	if interval <= 0 {
		interval = defaultDeviceInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// the first poll waits a full interval as well
	limiter.Reserve()

	var deadline time.Time
	if expiresIn > 0 {
		deadline = c.now().Add(expiresIn)
	}
	for {
		if !deadline.IsZero() && c.now().After(deadline) {
			return nil, authflow.NewAuthError(authflow.KindUIRequired, op, errors.New("device code expired"))
		}
		if err := limiter.Wait(ctx); err != nil {
			// also fails early when the next poll would pass ctx's deadline
			return nil, authflow.NewAuthError(authflow.KindCancelled, op, err)
		}
		tok, oe, err := c.pollDeviceToken(ctx, ep.TokenURL, device.DeviceCode)
		if err != nil {
			return nil, classify(op, err)
		}
		if oe != nil {
			switch oe.err.Code {
			case "authorization_pending":
				continue
			case "slow_down":
				interval += step
				limiter.SetLimit(rate.Every(interval))
				c.log.Debugw("Device code polling slowed down", "interval", interval)
				continue
			default:
				return nil, newOAuthError(op, oe.err, oe.status)
			}
		}
		return c.finish(tok, scopes, nil, authflow.AuthTypeDeviceCode)
	}
}

func (c *OIDCClient) requestDeviceCode(ctx context.Context, endpoint, scope string) (*deviceCodeResponse, error) {
	var payload deviceCodeResponse
	var failure oauthError
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id": c.cfg.ClientID,
			"scope":     scope,
		}).
		SetResult(&payload).
		SetError(&failure).
		Post(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		if failure.Code == "" {
			failure.Code = "device_authorization_failed"
			failure.Description = strings.TrimSpace(resp.String())
		}
		return nil, newOAuthError("devicecode", &failure, resp.StatusCode())
	}
	if payload.DeviceCode == "" {
		return nil, authflow.NewAuthError(authflow.KindService, "devicecode", errors.New("device authorization response has no device code"))
	}
	return &payload, nil
}

type pollFailure struct {
	err    *oauthError
	status int
}

func (c *OIDCClient) pollDeviceToken(ctx context.Context, endpoint, deviceCode string) (*oauth2.Token, *pollFailure, error) {
	var payload tokenResponse
	var failure oauthError
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":  deviceCodeGrantType,
			"device_code": deviceCode,
			"client_id":   c.cfg.ClientID,
		}).
		SetResult(&payload).
		SetError(&failure).
		Post(endpoint)
	if err != nil {
		return nil, nil, err
	}
	if resp.IsError() || failure.Code != "" {
		if failure.Code == "" {
			failure.Code = "token_request_failed"
			failure.Description = strings.TrimSpace(resp.String())
		}
		return nil, &pollFailure{err: &failure, status: resp.StatusCode()}, nil
	}
	if payload.AccessToken == "" {
		return nil, nil, authflow.NewAuthError(authflow.KindNullResult, "devicecode", errors.New("token response has no access token"))
	}
	tok := &oauth2.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
	}
	if payload.ExpiresIn > 0 {
		tok.Expiry = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	if payload.IDToken != "" {
		tok = tok.WithExtra(map[string]interface{}{"id_token": payload.IDToken})
	}
	return tok, nil, nil
}
