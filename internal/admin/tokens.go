package admin

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"os"
)

// Token is an authenticated admin API caller.
type Token struct {
	Name  string `json:"name"`
	Scope string `json:"scope"`
}

// TokenStore validates bearer tokens.
type TokenStore interface {
	Validate(secret string) (*Token, bool)
}

// TokenConfig is one configured bearer token. TokenEnv names an
// environment variable holding the secret and wins over Token.
type TokenConfig struct {
	Name     string
	Token    string
	TokenEnv string
	Scope    string
}

type staticToken struct {
	token Token
	hash  [sha256.Size]byte
}

// StaticTokens is a fixed set of bearer tokens loaded at startup.
type StaticTokens struct {
	tokens []staticToken
}

// NewStaticTokens resolves the secrets of cfgs. Tokens with an empty secret
// after resolution are rejected.
func NewStaticTokens(cfgs []TokenConfig) (*StaticTokens, error) {
	s := &StaticTokens{}
	for _, c := range cfgs {
		if c.Scope != ScopeAdmin && c.Scope != ScopeReadOnly {
			return nil, fmt.Errorf("admin token %q: unknown scope %q", c.Name, c.Scope)
		}
		secret := c.Token
		if c.TokenEnv != "" {
			if v := os.Getenv(c.TokenEnv); v != "" {
				secret = v
			}
		}
		if secret == "" {
			return nil, fmt.Errorf("admin token %q: empty secret", c.Name)
		}
		s.tokens = append(s.tokens, staticToken{
			token: Token{Name: c.Name, Scope: c.Scope},
			hash:  sha256.Sum256([]byte(secret)),
		})
	}
	return s, nil
}

// Len returns the number of configured tokens.
func (s *StaticTokens) Len() int { return len(s.tokens) }

// Validate compares secret against every token in constant time.
func (s *StaticTokens) Validate(secret string) (*Token, bool) {
	sum := sha256.Sum256([]byte(secret))
	var found *Token
	for i := range s.tokens {
		if subtle.ConstantTimeCompare(sum[:], s.tokens[i].hash[:]) == 1 && found == nil {
			tok := s.tokens[i].token
			found = &tok
		}
	}
	return found, found != nil
}
