package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/telekom/azauth/pkg/authflow"
)

// ErrNoAccount is wrapped by the UI required error returned when no cached
// account can be used silently.
var ErrNoAccount = errors.New("no cached account")

// oauthError is the error body of an OAuth2 token or device endpoint.
type oauthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
	Claims      string `json:"claims"`
}

func (e *oauthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func kindForCode(code string, status int) authflow.Kind {
	switch code {
	case "interaction_required", "login_required", "consent_required", "invalid_grant", "expired_token", "bad_token":
		return authflow.KindUIRequired
	case "access_denied", "authorization_declined":
		return authflow.KindCancelled
	case "invalid_client", "unauthorized_client", "invalid_request", "invalid_scope", "unsupported_grant_type", "invalid_resource":
		return authflow.KindClient
	case "temporarily_unavailable", "server_error":
		return authflow.KindService
	}
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return authflow.KindClient
	}
	return authflow.KindService
}

func newOAuthError(op string, oe *oauthError, status int) *authflow.AuthError {
	ae := authflow.NewAuthError(kindForCode(oe.Code, status), op, oe)
	ae.Claims = oe.Claims
	return ae
}

// classify turns errors from the oauth2 and HTTP layers into categorized
// AuthErrors. Errors it does not recognize are returned unchanged.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *authflow.AuthError
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return authflow.NewAuthError(authflow.KindCancelled, op, err)
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		oe := &oauthError{Code: re.ErrorCode, Description: re.ErrorDescription}
		_ = json.Unmarshal(re.Body, oe)
		if oe.Code == "" {
			oe.Code = "token_request_failed"
		}
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return newOAuthError(op, oe, status)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return authflow.NewAuthError(authflow.KindService, op, err)
	}
	return err
}
