package identity

import (
	"github.com/golang-jwt/jwt/v4"
)

// Claims holds the identity claims azauth reads from issued tokens.
type Claims struct {
	Username string
	Name     string
	SID      string
	ObjectID string
	TenantID string
}

// ParseClaims reads claims from a JWT without verifying its signature. The
// result is for display and cache keys only.
func ParseClaims(raw string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return Claims{}, err
	}
	return Claims{
		Username: firstString(mc, "preferred_username", "upn", "unique_name", "email"),
		Name:     firstString(mc, "name"),
		SID:      firstString(mc, "sid"),
		ObjectID: firstString(mc, "oid", "sub"),
		TenantID: firstString(mc, "tid"),
	}, nil
}

func firstString(mc jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if v, ok := mc[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// merge fills empty fields of c from other.
func (c Claims) merge(other Claims) Claims {
	if c.Username == "" {
		c.Username = other.Username
	}
	if c.Name == "" {
		c.Name = other.Name
	}
	if c.SID == "" {
		c.SID = other.SID
	}
	if c.ObjectID == "" {
		c.ObjectID = other.ObjectID
	}
	if c.TenantID == "" {
		c.TenantID = other.TenantID
	}
	return c
}
