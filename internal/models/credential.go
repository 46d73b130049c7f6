package models

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Credential is a stored OAuth token for one platform and subject.
type Credential struct {
	ID           string
	Platform     Platform
	Subject      string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Scope        string
	ExpiresAt    time.Time // zero when the platform issued a non-expiring token
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ExpiresWithin reports whether the access token expires before now+margin.
func (c *Credential) ExpiresWithin(margin time.Duration, now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(c.ExpiresAt)
}

// CanRefresh reports whether a refresh token is available.
func (c *Credential) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Usable reports whether the credential is live now or can be made live by a refresh.
func (c *Credential) Usable(now time.Time) bool {
	return c.CanRefresh() || c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// Token converts the credential to an [oauth2.Token].
func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    c.TokenType,
		Expiry:       c.ExpiresAt,
	}
}

// WithToken returns a copy of c updated from tok. An empty refresh token in tok keeps the previous one.
func (c *Credential) WithToken(tok *oauth2.Token) *Credential {
	next := *c
	next.AccessToken = tok.AccessToken
	next.SetExpiry(tok.Expiry)
	if tok.RefreshToken != "" {
		next.RefreshToken = tok.RefreshToken
	}
	if tok.TokenType != "" {
		next.TokenType = tok.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		next.Scope = scope
	}
	return &next
}

// SetExpiry sets ExpiresAt in UTC.
func (c *Credential) SetExpiry(t time.Time) {
	if t.IsZero() {
		c.ExpiresAt = time.Time{}
		return
	}
	c.ExpiresAt = t.UTC()
}

// Validate checks the fields required to persist a credential.
func (c *Credential) Validate() error {
	if _, err := ParsePlatform(string(c.Platform)); err != nil {
		return err
	}
	if c.Subject == "" {
		return fmt.Errorf("credential subject is required")
	}
	if c.AccessToken == "" {
		return fmt.Errorf("credential access token is required")
	}
	return nil
}
