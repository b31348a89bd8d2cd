package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextKeyCashier   = "drawer_cashier_id"
	authorizationHeader = "Authorization"
	bearerScheme        = "bearer"
	errorCodeAuth       = "unauthorized"
)

var (
	errMissingToken  = errors.New("authorization header required")
	errMalformedAuth = errors.New("authorization header format must be Bearer {token}")
	errMissingKey    = errors.New("jwt signing key is required")
)

// TokenVerifier validates HS256 bearer tokens and extracts the cashier from the sub claim.
type TokenVerifier struct {
	signingKey []byte
	issuer     string
}

// NewTokenVerifier returns a verifier. An empty issuer disables the issuer check.
func NewTokenVerifier(signingKey string, issuer string) (*TokenVerifier, error) {
	if signingKey == "" {
		return nil, errMissingKey
	}
	return &TokenVerifier{signingKey: []byte(signingKey), issuer: strings.TrimSpace(issuer)}, nil
}

// CashierFromToken parses raw and returns the cashier it was issued to.
func (verifier *TokenVerifier) CashierFromToken(raw string) (drawer.CashierID, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if verifier.issuer != "" {
		options = append(options, jwt.WithIssuer(verifier.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return verifier.signingKey, nil
	}, options...)
	if err != nil {
		return drawer.CashierID{}, err
	}
	if !token.Valid {
		return drawer.CashierID{}, jwt.ErrTokenSignatureInvalid
	}
	cashierID, err := drawer.NewCashierID(claims.Subject)
	if err != nil {
		return drawer.CashierID{}, fmt.Errorf("subject claim: %w", err)
	}
	return cashierID, nil
}

// Middleware rejects requests without a valid bearer token.
func (verifier *TokenVerifier) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		raw, err := bearerToken(ctx.GetHeader(authorizationHeader))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, failure(errorCodeAuth, err.Error()))
			return
		}
		cashierID, err := verifier.CashierFromToken(raw)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				message = "token has expired"
			}
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, failure(errorCodeAuth, message))
			return
		}
		ctx.Set(contextKeyCashier, cashierID)
		ctx.Next()
	}
}

func bearerToken(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", errMissingToken
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || strings.ToLower(parts[0]) != bearerScheme {
		return "", errMalformedAuth
	}
	return parts[1], nil
}

func cashierFrom(ctx *gin.Context) (drawer.CashierID, bool) {
	value, ok := ctx.Get(contextKeyCashier)
	if !ok {
		return drawer.CashierID{}, false
	}
	cashierID, ok := value.(drawer.CashierID)
	return cashierID, ok
}
