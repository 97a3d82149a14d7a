package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// RoleAdmin is the only role the room API accepts.
const RoleAdmin = "admin"

var ErrInvalidToken = errors.New("invalid token")

// RoomSecrets hashes room passwords with bcrypt. An empty password means the
// room is open and is stored as nil. Passwords are digested with SHA-256
// first so every byte counts, whatever the length.
type RoomSecrets struct {
	Cost int
}

func NewRoomSecrets(cost int) RoomSecrets {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return RoomSecrets{Cost: cost}
}

func (s RoomSecrets) Seal(pw string) ([]byte, error) {
	if pw == "" {
		return nil, nil
	}
	return bcrypt.GenerateFromPassword(prehash(pw), s.Cost)
}

func (s RoomSecrets) Match(sealed []byte, pw string) bool {
	if sealed == nil {
		return pw == ""
	}
	return bcrypt.CompareHashAndPassword(sealed, prehash(pw)) == nil
}

// prehash keeps bcrypt input under its 72 byte limit. Base64 avoids NUL bytes.
func prehash(pw string) []byte {
	sum := sha256.Sum256([]byte(pw))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAdminToken signs an operator token for subject.
func GenerateAdminToken(subject, secret string, ttlMinutes int) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseAdminToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.Role == RoleAdmin {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// AdminMiddleware 校验 Bearer 管理员令牌，并把 subject 放入上下文。
func AdminMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := ParseAdminToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("admin", claims.Subject)
		c.Next()
	}
}

// GetAdmin returns the subject of the verified admin token, if any.
func GetAdmin(c *gin.Context) string {
	if v, ok := c.Get("admin"); ok {
		if s, ok2 := v.(string); ok2 {
			return s
		}
	}
	return ""
}
