package identity

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/azauth/pkg/authflow"
)

// browserFollowing returns a browser opener that completes the login by
// calling the redirect URI with the given query parameters.
func browserFollowing(t *testing.T, params func(state string) url.Values, seen *url.URL) func(string) error {
	return func(raw string) error {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		*seen = *u
		q := u.Query()
		redirect := q.Get("redirect_uri") + "?" + params(q.Get("state")).Encode()
		go func() {
			resp, err := http.Get(redirect) //nolint:noctx
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestInteractive(t *testing.T) {
	idp := newFakeIdP(t)
	idp.tokenResponder = func(form url.Values) (int, map[string]interface{}) {
		if form.Get("grant_type") != "authorization_code" || form.Get("code") != "the-code" || form.Get("code_verifier") == "" {
			return http.StatusBadRequest, map[string]interface{}{"error": "invalid_request"}
		}
		return http.StatusOK, tokenBody(t, "interactive-token")
	}
	c, _ := newTestClient(t, idp)
	var authURL url.URL
	c.openBrowser = browserFollowing(t, func(state string) url.Values {
		return url.Values{"code": {"the-code"}, "state": {state}}
	}, &authURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tok, err := c.Interactive(ctx, InteractiveRequest{
		Scopes:     []string{"api://backend/.default"},
		Account:    &Account{Username: "jane@contoso.com"},
		Claims:     `{"access_token":{"xms_cc":{"values":["cp1"]}}}`,
		Domain:     "contoso.com",
		PromptHint: "Azure Auth: deploy",
	})
	require.NoError(t, err)
	assert.Equal(t, "interactive-token", tok.AccessToken)
	assert.Equal(t, authflow.AuthTypeInteractive, tok.AuthType)
	assert.Equal(t, "jane@contoso.com", tok.User)

	q := authURL.Query()
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "jane@contoso.com", q.Get("login_hint"))
	assert.Equal(t, "contoso.com", q.Get("domain_hint"))
	assert.Contains(t, q.Get("claims"), "xms_cc")
	assert.Contains(t, q.Get("scope"), "offline_access")

	out := c.cfg.PromptOutput.(interface{ String() string }).String()
	assert.Contains(t, out, "Azure Auth: deploy")

	accounts, err := c.Accounts(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "Jane Doe", accounts[0].Name)
}

func TestInteractiveDenied(t *testing.T) {
	c, _ := newTestClient(t, newFakeIdP(t))
	var authURL url.URL
	c.openBrowser = browserFollowing(t, func(state string) url.Values {
		return url.Values{"error": {"access_denied"}, "error_description": {"user cancelled"}, "state": {state}}
	}, &authURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := c.Interactive(ctx, InteractiveRequest{Scopes: []string{"s"}})
	assert.Equal(t, authflow.KindCancelled, authflow.KindOf(err))
	assert.Equal(t, "select_account", authURL.Query().Get("prompt"))
}

func TestInteractiveContextDone(t *testing.T) {
	c, _ := newTestClient(t, newFakeIdP(t))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Interactive(ctx, InteractiveRequest{Scopes: []string{"s"}})
	assert.Equal(t, authflow.KindCancelled, authflow.KindOf(err))
}

func TestDeviceCode(t *testing.T) {
	idp := newFakeIdP(t)
	idp.deviceResponse = map[string]interface{}{
		"device_code":      "dev-123",
		"user_code":        "ABCD-EFGH",
		"verification_uri": "https://microsoft.com/devicelogin",
		"expires_in":       900,
		"interval":         5,
	}
	var mu sync.Mutex
	polls := 0
	idp.tokenResponder = func(form url.Values) (int, map[string]interface{}) {
		mu.Lock()
		defer mu.Unlock()
		if form.Get("device_code") != "dev-123" {
			return http.StatusBadRequest, map[string]interface{}{"error": "invalid_request"}
		}
		polls++
		switch polls {
		case 1:
			return http.StatusBadRequest, map[string]interface{}{"error": "authorization_pending"}
		case 2:
			return http.StatusBadRequest, map[string]interface{}{"error": "slow_down"}
		default:
			return http.StatusOK, tokenBody(t, "device-token")
		}
	}
	c, _ := newTestClient(t, idp)

	var prompts []DeviceCodePrompt
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tok, err := c.DeviceCode(ctx, []string{"api://backend/.default"}, func(p DeviceCodePrompt) {
		prompts = append(prompts, p)
	})
	require.NoError(t, err)
	assert.Equal(t, "device-token", tok.AccessToken)
	assert.Equal(t, authflow.AuthTypeDeviceCode, tok.AuthType)
	assert.Equal(t, "jane@contoso.com", tok.User)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.ExpiresOn, time.Minute)

	require.Len(t, prompts, 1)
	assert.Equal(t, "ABCD-EFGH", prompts[0].UserCode)
	assert.Equal(t, 15*time.Minute, prompts[0].ExpiresIn)
	assert.True(t, strings.Contains(prompts[0].Message, "ABCD-EFGH"))
	mu.Lock()
	assert.Equal(t, 3, polls)
	mu.Unlock()

	for _, form := range idp.requests() {
		assert.Equal(t, deviceCodeGrantType, form.Get("grant_type"))
	}
}

func TestDeviceCodeDenied(t *testing.T) {
	idp := newFakeIdP(t)
	idp.deviceResponse = map[string]interface{}{"device_code": "d", "user_code": "u", "verification_uri": "v", "expires_in": 60}
	idp.tokenResponder = func(url.Values) (int, map[string]interface{}) {
		return http.StatusBadRequest, map[string]interface{}{"error": "authorization_declined"}
	}
	c, _ := newTestClient(t, idp)
	_, err := c.DeviceCode(context.Background(), []string{"s"}, nil)
	assert.Equal(t, authflow.KindCancelled, authflow.KindOf(err))
}

func TestDeviceCodeCancelled(t *testing.T) {
	idp := newFakeIdP(t)
	idp.deviceResponse = map[string]interface{}{"device_code": "d", "user_code": "u", "verification_uri": "v", "expires_in": 60}
	idp.tokenResponder = func(url.Values) (int, map[string]interface{}) {
		return http.StatusBadRequest, map[string]interface{}{"error": "authorization_pending"}
	}
	c, _ := newTestClient(t, idp)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.DeviceCode(ctx, []string{"s"}, nil)
	assert.Equal(t, authflow.KindCancelled, authflow.KindOf(err))
}

func TestInteractiveIgnoresStaleCallback(t *testing.T) {
	idp := newFakeIdP(t)
	idp.tokenResponder = func(url.Values) (int, map[string]interface{}) {
		return http.StatusOK, tokenBody(t, "interactive-token")
	}
	c, _ := newTestClient(t, idp)
	staleStatus := make(chan int, 1)
	c.openBrowser = func(raw string) error {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		redirect := u.Query().Get("redirect_uri")
		go func() {
			stale := url.Values{"code": {"old-code"}, "state": {"stale-tab"}}
			resp, err := http.Get(redirect + "?" + stale.Encode()) //nolint:noctx
			if err == nil {
				staleStatus <- resp.StatusCode
				_ = resp.Body.Close()
			}
			fresh := url.Values{"code": {"the-code"}, "state": {u.Query().Get("state")}}
			resp, err = http.Get(redirect + "?" + fresh.Encode()) //nolint:noctx
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tok, err := c.Interactive(ctx, InteractiveRequest{Scopes: []string{"s"}})
	require.NoError(t, err)
	assert.Equal(t, "interactive-token", tok.AccessToken)
	assert.Equal(t, http.StatusBadRequest, <-staleStatus)
	for _, form := range idp.requests() {
		assert.Equal(t, "the-code", form.Get("code"))
	}
}

func TestInteractiveMissingCode(t *testing.T) {
	c, _ := newTestClient(t, newFakeIdP(t))
	var authURL url.URL
	c.openBrowser = browserFollowing(t, func(state string) url.Values {
		return url.Values{"state": {state}}
	}, &authURL)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := c.Interactive(ctx, InteractiveRequest{Scopes: []string{"s"}})
	require.Error(t, err)
	assert.True(t, authflow.IsRecoverable(err))
	assert.Equal(t, authflow.KindClient, authflow.KindOf(err))
	assert.Contains(t, err.Error(), "missing code")
}

func TestDeviceCodeEmptyTokenResponse(t *testing.T) {
	idp := newFakeIdP(t)
	idp.deviceResponse = map[string]interface{}{"device_code": "d", "user_code": "u", "verification_uri": "v", "expires_in": 60}
	idp.tokenResponder = func(url.Values) (int, map[string]interface{}) {
		return http.StatusOK, map[string]interface{}{}
	}
	c, _ := newTestClient(t, idp)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tok, err := c.DeviceCode(ctx, []string{"s"}, nil)
	require.Error(t, err)
	assert.Nil(t, tok)
	assert.Equal(t, authflow.KindNullResult, authflow.KindOf(err))
	assert.True(t, authflow.IsRecoverable(err))
}
