package usecase

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Errores comunes del servicio de tokens
var (
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token has expired")
	ErrFailedToGenerateToken = errors.New("failed to generate token")
	ErrInvalidSigningMethod  = errors.New("invalid signing method")
)

// Claims define los datos que se almacenan en un JWT
type Claims struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenService genera y verifica los tokens que identifican a un usuario
type TokenService struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
}

// NewTokenService crea una nueva instancia del servicio de tokens
func NewTokenService(jwtSecret string, tokenExpiry time.Duration) *TokenService {
	return &TokenService{
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: tokenExpiry,
	}
}

// GenerateToken genera un token para un usuario de un tenant
func (s *TokenService) GenerateToken(tenantID, userID uuid.UUID) (string, error) {
	claims := Claims{
		TenantID: tenantID.String(),
		UserID:   userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", ErrFailedToGenerateToken
	}
	return tokenString, nil
}

// VerifyToken verifica un token y devuelve sus claims
func (s *TokenService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Validar método de firma
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		var validationErr *jwt.ValidationError
		if errors.As(err, &validationErr) && validationErr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// Identify verifica el token y devuelve el tenant y el usuario que contiene
func (s *TokenService) Identify(tokenString string) (tenantID, userID uuid.UUID, err error) {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}

	tenantID, err = uuid.Parse(claims.TenantID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	userID, err = uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, uuid.Nil, ErrInvalidToken
	}
	return tenantID, userID, nil
}
