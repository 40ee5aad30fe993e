package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// authConfig configures bearer-token authentication. A zero secret
// disables authentication.
type authConfig struct {
	// JWTSecret is the shared secret for HS256 validation.
	JWTSecret string
	// Issuer is the expected "iss" claim (optional).
	Issuer string
	// Audience is the expected "aud" claim (optional).
	Audience string
}

func (a authConfig) enabled() bool { return a.JWTSecret != "" }

// validate checks a token and returns its subject, falling back to the
// "name" claim.
func (a authConfig) validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.Issuer))
	}
	if a.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.Audience))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	sub, _ := claims.GetSubject()
	if sub == "" {
		sub, _ = claims["name"].(string)
	}
	if sub == "" {
		return "", errors.New("token missing identity claims (sub or name)")
	}
	return sub, nil
}

// bearer extracts the token of an "Authorization: Bearer <token>" value.
func bearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("missing bearer token")
	}
	return strings.TrimSpace(token), nil
}

// requireAuth wraps an HTTP handler with token validation.
func (a authConfig) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if !a.enabled() {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := bearer(r.Header.Get("Authorization"))
		if err == nil {
			_, err = a.validate(token)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// unaryInterceptor validates the "authorization" metadata of gRPC calls.
func (a authConfig) unaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !a.enabled() {
		return handler(ctx, req)
	}
	md, _ := metadata.FromIncomingContext(ctx)
	var header string
	if v := md.Get("authorization"); len(v) > 0 {
		header = v[0]
	}
	token, err := bearer(header)
	if err == nil {
		_, err = a.validate(token)
	}
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	return handler(ctx, req)
}
