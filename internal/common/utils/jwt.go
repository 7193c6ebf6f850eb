// internal/common/utils/jwt.go
// HMAC token verification for the match API. Tokens are issued by the
// identity service; GenerateJWT exists so tests and local tooling can mint
// compatible ones.

package utils

import (
    "errors"
    "fmt"
    "strconv"

    "github.com/golang-jwt/jwt/v4"
)

// JWTClaims is the claim set the identity service signs into its tokens.
type JWTClaims struct {
    UserID   int64  `json:"user_id"`
    Email    string `json:"email"`
    Username string `json:"username"`
    // Type distinguishes access from refresh tokens; only access tokens
    // pass the middleware.
    Type      string `json:"type"`
    ExpiresAt int64  `json:"exp"`
    IssuedAt  int64  `json:"iat"`
    NotBefore int64  `json:"nbf"`
    Issuer    string `json:"iss"`
    Subject   string `json:"sub"`
}

// GenerateJWT signs claims with the shared secret. The user id travels as
// a string claim, matching the issuer's wire format.
func GenerateJWT(claims *JWTClaims, secret string) (string, error) {
    token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
        "user_id":  strconv.FormatInt(claims.UserID, 10),
        "email":    claims.Email,
        "username": claims.Username,
        "type":     claims.Type,
        "exp":      claims.ExpiresAt,
        "iat":      claims.IssuedAt,
        "nbf":      claims.NotBefore,
        "iss":      claims.Issuer,
        "sub":      claims.Subject,
    })

    signed, err := token.SignedString([]byte(secret))
    if err != nil {
        return "", fmt.Errorf("failed to sign token: %w", err)
    }
    return signed, nil
}

// ValidateJWT verifies the signature and time claims and returns the
// decoded claim set.
func ValidateJWT(tokenString, secret string) (*JWTClaims, error) {
    token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
        if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
        }
        return []byte(secret), nil
    })
    if err != nil {
        return nil, err
    }

    claims, ok := token.Claims.(jwt.MapClaims)
    if !ok || !token.Valid {
        return nil, errors.New("invalid token")
    }

    userIDStr, ok := claims["user_id"].(string)
    if !ok {
        return nil, errors.New("token missing user_id")
    }
    userID, err := strconv.ParseInt(userIDStr, 10, 64)
    if err != nil {
        return nil, errors.New("malformed user_id claim")
    }

    return &JWTClaims{
        UserID:    userID,
        Email:     stringClaim(claims, "email"),
        Username:  stringClaim(claims, "username"),
        Type:      stringClaim(claims, "type"),
        ExpiresAt: int64Claim(claims, "exp"),
        IssuedAt:  int64Claim(claims, "iat"),
        NotBefore: int64Claim(claims, "nbf"),
        Issuer:    stringClaim(claims, "iss"),
        Subject:   stringClaim(claims, "sub"),
    }, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
    if v, ok := claims[key].(string); ok {
        return v
    }
    return ""
}

func int64Claim(claims jwt.MapClaims, key string) int64 {
    if v, ok := claims[key].(float64); ok {
        return int64(v)
    }
    return 0
}
