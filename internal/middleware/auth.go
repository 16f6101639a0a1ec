package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"mibagent/internal/agent"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenExpiry = 24 * time.Hour

	principalKey = "principal"
)

var errInvalidToken = errors.New("invalid token")

// Claims carries the principal class granted at login.
type Claims struct {
	Username string `json:"username"`
	Class    string `json:"class"`
	jwt.RegisteredClaims
}

// Account is one API login.
type Account struct {
	Username     string
	PasswordHash string
	Class        agent.Class
}

type AuthService struct {
	secret      []byte
	accounts    map[string]Account
	mu          sync.Mutex
	apiFailures map[string]*apiFailure
}

type apiFailure struct {
	count        int
	lastAttempt  time.Time
	lockoutUntil time.Time
}

func NewAuthService(secret string, accounts ...Account) *AuthService {
	byName := make(map[string]Account, len(accounts))
	for _, acct := range accounts {
		if strings.TrimSpace(acct.Username) == "" || acct.PasswordHash == "" {
			continue
		}
		byName[acct.Username] = acct
	}
	return &AuthService{
		secret:      []byte(secret),
		accounts:    byName,
		apiFailures: make(map[string]*apiFailure),
	}
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// Authenticate checks a username/password pair against the configured
// accounts.
func (a *AuthService) Authenticate(username, password string) (Account, bool) {
	acct, ok := a.accounts[username]
	if !ok || !CheckPassword(password, acct.PasswordHash) {
		return Account{}, false
	}
	return acct, true
}

func (a *AuthService) GenerateToken(username string, class agent.Class) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Class:    class.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   username,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, errInvalidToken
}

// RequireAPIAuth validates the bearer token and stores the caller's
// principal on the context. Repeated failures from one client trigger a
// short lockout.
func (a *AuthService) RequireAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if retryAfter, locked := a.checkAPILockout(key); locked {
			abortLocked(c, retryAfter)
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if tokenString == "" {
			// Browsers cannot set headers on websocket upgrades.
			tokenString = strings.TrimSpace(c.Query("access_token"))
		}
		if tokenString == "" {
			if retryAfter, locked := a.recordAPIFailure(key); locked {
				abortLocked(c, retryAfter)
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		claims, err := a.ValidateToken(tokenString)
		var class agent.Class
		if err == nil {
			class, err = agent.ParseClass(claims.Class)
		}
		if err != nil {
			if retryAfter, locked := a.recordAPIFailure(key); locked {
				abortLocked(c, retryAfter)
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		a.clearAPIFailures(key)
		c.Set("username", claims.Username)
		c.Set(principalKey, agent.Principal{Name: claims.Username, Class: class})
		c.Next()
	}
}

// PrincipalFrom returns the principal set by RequireAPIAuth. Requests
// without one are treated as read-only.
func PrincipalFrom(c *gin.Context) agent.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(agent.Principal); ok {
			return p
		}
	}
	return agent.Principal{Name: "anonymous", Class: agent.ReadOnly}
}

func abortLocked(c *gin.Context, retryAfter time.Duration) {
	c.Header("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       "Too many unauthorized attempts",
		"retry_after": int(retryAfter.Seconds()),
	})
}

func (a *AuthService) checkAPILockout(key string) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.apiFailures[key]
	if !ok {
		return 0, false
	}
	now := time.Now()
	if rec.lockoutUntil.After(now) {
		return rec.lockoutUntil.Sub(now), true
	}
	return 0, false
}

// RecordLoginFailure counts a failed password attempt toward the lockout.
func (a *AuthService) RecordLoginFailure(key string) (time.Duration, bool) {
	return a.recordAPIFailure(key)
}

// LockedOut reports whether key is currently locked out.
func (a *AuthService) LockedOut(key string) (time.Duration, bool) {
	return a.checkAPILockout(key)
}

func (a *AuthService) recordAPIFailure(key string) (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	rec, ok := a.apiFailures[key]
	if !ok {
		rec = &apiFailure{}
		a.apiFailures[key] = rec
	}
	if rec.lockoutUntil.After(now) {
		return rec.lockoutUntil.Sub(now), true
	}
	if now.Sub(rec.lastAttempt) > 5*time.Minute {
		rec.count = 0
	}
	rec.lastAttempt = now
	rec.count++

	if rec.count >= 3 {
		lockout := time.Duration(rec.count) * 15 * time.Second
		if lockout > 2*time.Minute {
			lockout = 2 * time.Minute
		}
		rec.lockoutUntil = now.Add(lockout)
		rec.count = 0
		return lockout, true
	}
	return 0, false
}

// ClearFailures resets the failure count for key.
func (a *AuthService) ClearFailures(key string) {
	a.clearAPIFailures(key)
}

func (a *AuthService) clearAPIFailures(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.apiFailures, key)
}
