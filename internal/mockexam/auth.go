package mockexam

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/proctoraegis/examclient/internal/config"
	"github.com/proctoraegis/examclient/internal/response"
)

// contextKeyStudentID is the Gin context key for the authenticated student.
const contextKeyStudentID = "student_id"

// claims extends JWT registered claims with the student identity.
type claims struct {
	jwt.RegisteredClaims
	StudentID uuid.UUID `json:"student_id"`
}

// issueToken signs an HS256 student token.
func issueToken(cfg *config.Config, studentID uuid.UUID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   studentID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.JWTExpiry)),
		},
		StudentID: studentID,
	})
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// requireStudentJWT validates the bearer token and stores the student id
// in the request context.
func requireStudentJWT(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				tokenStr = parts[1]
			}
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		parsed := &claims{}
		token, err := jwt.ParseWithClaims(tokenStr, parsed, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(cfg.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(contextKeyStudentID, parsed.StudentID)
		c.Next()
	}
}

// studentID retrieves the authenticated student id from the context.
func studentID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(contextKeyStudentID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}
