package jwttoken

import (
	authmw "aidreg/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes JWTService as the auth middleware's validator.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Claims{Subject: claims.Subject, TokenID: claims.ID}, nil
}
