// Package identity talks to the identity provider on behalf of the auth
// strategies. It implements silent refresh, browser based authorization code
// with PKCE and device code grants against Azure AD or any OIDC authority,
// and keeps a token cache in a file or the OS keyring.
package identity
