package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"meet-in-the-middle-api/internal/model"
)

var ErrUnknownProvider = errors.New("unknown oauth provider")

const stateTTL = 10 * time.Minute

// Profile is what a provider tells us about the person who just signed in.
type Profile struct {
	Email  string
	Name   string
	Avatar string
}

// Strategy drives one external login provider.
type Strategy interface {
	AuthCodeURL(state string) string
	// Profile exchanges the authorization code and loads the user's profile.
	Profile(ctx context.Context, code string) (*Profile, error)
}

// Strategies maps provider names ("google", "facebook", "oidc") to their strategy.
type Strategies map[string]Strategy

type Service struct {
	secret     string
	strategies Strategies
}

func NewService(secret string, strategies Strategies) *Service {
	if strategies == nil {
		strategies = Strategies{}
	}
	return &Service{secret: secret, strategies: strategies}
}

func (s *Service) AccessToken(id model.Identity) (string, error) {
	return MakeToken(id, s.secret)
}

func (s *Service) Verify(raw string) (model.Identity, error) {
	c, err := ParseToken(raw, s.secret)
	if err != nil {
		return model.Identity{}, err
	}
	return c.Identity(), nil
}

func (s *Service) Providers() []string {
	out := make([]string, 0, len(s.strategies))
	for name := range s.strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Service) Strategy(provider string) (Strategy, error) {
	st, ok := s.strategies[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return st, nil
}

// State returns a short lived signed value bound to provider, round-tripped
// through the provider's redirect.
func (s *Service) State(provider string) (string, error) {
	now := time.Now()
	c := jwt.RegisteredClaims{
		Subject:   provider,
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(s.secret))
}

func (s *Service) CheckState(provider, state string) error {
	c := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(state, c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return []byte(s.secret), nil
	})
	if err != nil {
		return ErrBadToken
	}
	if c.Subject != provider {
		return ErrBadToken
	}
	return nil
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// userinfoStrategy is a plain OAuth2 provider that exposes the profile on a
// JSON endpoint.
type userinfoStrategy struct {
	cfg     *oauth2.Config
	infoURL string
	decode  func(map[string]any) Profile
}

func (u *userinfoStrategy) AuthCodeURL(state string) string {
	return u.cfg.AuthCodeURL(state)
}

func (u *userinfoStrategy) Profile(ctx context.Context, code string) (*Profile, error) {
	tok, err := u.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.infoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch profile: http %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p := u.decode(raw)
	if p.Email == "" {
		return nil, errors.New("provider did not return an email")
	}
	return &p, nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func NewGoogleStrategy(c OAuthConfig) Strategy {
	return newGoogleStrategy(c, endpoints.Google, "https://www.googleapis.com/oauth2/v3/userinfo")
}

func newGoogleStrategy(c OAuthConfig, ep oauth2.Endpoint, infoURL string) Strategy {
	return &userinfoStrategy{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     ep,
			Scopes:       []string{"openid", "profile", "email"},
		},
		infoURL: infoURL,
		decode: func(m map[string]any) Profile {
			return Profile{Email: str(m, "email"), Name: str(m, "name"), Avatar: str(m, "picture")}
		},
	}
}

func NewFacebookStrategy(c OAuthConfig) Strategy {
	return &userinfoStrategy{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     endpoints.Facebook,
			Scopes:       []string{"email", "public_profile"},
		},
		infoURL: "https://graph.facebook.com/me?fields=id,name,email,picture",
		decode: func(m map[string]any) Profile {
			p := Profile{Email: str(m, "email"), Name: str(m, "name")}
			// picture is {"data": {"url": ...}}
			if pic, ok := m["picture"].(map[string]any); ok {
				if data, ok := pic["data"].(map[string]any); ok {
					p.Avatar = str(data, "url")
				}
			}
			return p
		},
	}
}

type oidcStrategy struct {
	cfg      *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDCStrategy discovers issuer and verifies the ID token it hands back.
func NewOIDCStrategy(ctx context.Context, issuer string, c OAuthConfig) (Strategy, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", issuer, err)
	}
	return &oidcStrategy{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: c.ClientID}),
	}, nil
}

func (o *oidcStrategy) AuthCodeURL(state string) string {
	return o.cfg.AuthCodeURL(state)
}

func (o *oidcStrategy) Profile(ctx context.Context, code string) (*Profile, error) {
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}
	idt, err := o.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idt.Claims(&claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.Email == "" {
		return nil, errors.New("provider did not return an email")
	}
	name := claims.Name
	if name == "" {
		name, _, _ = strings.Cut(claims.Email, "@")
	}
	return &Profile{Email: claims.Email, Name: name, Avatar: claims.Picture}, nil
}
