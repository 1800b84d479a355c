package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"

	"golang.org/x/oauth2"

	"github.com/telekom/azauth/pkg/authflow"
)

type callbackResult struct {
	code string
	err  error
}

// Interactive runs the authorization code grant with PKCE. The user signs in
// in a browser which redirects back to a loopback listener.
func (c *OIDCClient) Interactive(ctx context.Context, req InteractiveRequest) (*authflow.Token, error) {
	const op = "interactive"
	ep, err := c.endpoints(ctx)
	if err != nil {
		return nil, classify(op, err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, authflow.NewAuthError(authflow.KindClient, op, fmt.Errorf("failed to start callback listener: %w", err))
	}
	defer func() {
		_ = listener.Close()
	}()

	redirectURL := fmt.Sprintf("http://%s/callback", listener.Addr().String())
	oauthCfg := c.oauthConfig(ep, req.Scopes, redirectURL)

	state, err := randomToken(24)
	if err != nil {
		return nil, authflow.NewAuthError(authflow.KindClient, op, err)
	}
	verifier := oauth2.GenerateVerifier()

	authOpts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if req.Claims != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("claims", req.Claims))
	}
	if req.Account != nil && req.Account.Username != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("login_hint", req.Account.Username))
	} else {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", "select_account"))
	}
	if req.Domain != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("domain_hint", req.Domain))
	}
	authURL := oauthCfg.AuthCodeURL(state, authOpts...)

	results := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/callback" {
				http.NotFound(w, r)
				return
			}
			q := r.URL.Query()
			// A stale browser tab may hit the listener; keep waiting for ours.
			if q.Get("state") != state {
				c.log.Debugw("Ignoring callback with unexpected state", "remote", r.RemoteAddr)
				http.Error(w, "invalid state", http.StatusBadRequest)
				return
			}
			if code := q.Get("error"); code != "" {
				oe := &oauthError{Code: code, Description: q.Get("error_description")}
				deliver(callbackResult{err: newOAuthError(op, oe, 0)})
				http.Error(w, "authentication failed", http.StatusUnauthorized)
				return
			}
			code := q.Get("code")
			if code == "" {
				deliver(callbackResult{err: authflow.NewAuthError(authflow.KindClient, op, errors.New("missing code in callback"))})
				http.Error(w, "missing code", http.StatusBadRequest)
				return
			}
			_, _ = fmt.Fprintln(w, "Authentication complete. You can close this window.")
			deliver(callbackResult{code: code})
		}),
	}
	go func() {
		_ = server.Serve(listener)
	}()
	defer func() {
		_ = server.Close()
	}()

	if req.PromptHint != "" {
		_, _ = fmt.Fprintln(c.cfg.PromptOutput, req.PromptHint)
	}
	_, _ = fmt.Fprintf(c.cfg.PromptOutput, "Open the following URL in your browser:\n%s\n", authURL)
	if !c.cfg.NoBrowser {
		if err := c.openBrowser(authURL); err != nil {
			c.log.Debugw("Could not open browser", "error", err)
		}
	}

	var result callbackResult
	select {
	case <-ctx.Done():
		return nil, classify(op, ctx.Err())
	case result = <-results:
	}
	if result.err != nil {
		return nil, result.err
	}

	tok, err := oauthCfg.Exchange(c.httpContext(ctx), result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, classify(op, err)
	}
	return c.finish(tok, req.Scopes, nil, authflow.AuthTypeInteractive)
}

func randomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Start()
}
