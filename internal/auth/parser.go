package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/landbridge/contracts-service/internal/model"
)

type Claims struct {
	Role     string `json:"role"`
	FullName string `json:"name"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Parser validates access tokens and extracts the caller's principal. Role
// claims from the token are only a transport; transition-level checks resolve
// roles through the identity provider.
type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

func (p *Parser) Parse(raw string) (model.Principal, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return model.Principal{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Principal{}, fmt.Errorf("invalid token claims")
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return model.Principal{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return model.Principal{}, err
	}
	return model.Principal{
		UserID:   uint(userID),
		Role:     role,
		FullName: claims.FullName,
		Email:    claims.Email,
	}, nil
}

func ParseRole(raw string) (model.Role, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SALES_REP", "SALES REP":
		return model.RoleSalesRep, nil
	case "SALES_MANAGER", "SALES MANAGER":
		return model.RoleSalesManager, nil
	case "CLIENT":
		return model.RoleClient, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}
