package auth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GoogleOAuthProvider はGoogle OAuth 2.0（OIDC）による認証を提供する。
// 認可コードをIDトークンに交換し、署名検証は共通のTokenVerifierに委ねる。
type GoogleOAuthProvider struct {
	config *oauth2.Config
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(cfg GoogleOAuthConfig) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}
}

// AuthCodeURL はGoogle OAuthの認可URLを生成する。
func (p *GoogleOAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// ExchangeCode は認可コードをトークンに交換し、生のIDトークンを返す。
// IDトークンの署名・有効期限の検証は呼び出し側のTokenVerifierが行う。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (string, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", fmt.Errorf("no id_token in token response")
	}

	return rawIDToken, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
