package middleware

import (
	"errors"
	"net/http"

	"github.com/Conceptual-Machines/melody-api/internal/logger"
	"github.com/Conceptual-Machines/melody-api/internal/music"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

const (
	sessionName       = "melody_session"
	sessionIDKey      = "id"
	sessionSeedKey    = "seed"
	sessionMaxAgeDays = 7
	sessionContextKey = "session"
)

var errNoSession = errors.New("session middleware not installed")

// SeedSessions keeps each visitor's seed in a signed cookie session
type SeedSessions struct {
	store sessions.Store
}

// NewSeedSessions creates a cookie store. An empty secret gets a random key,
// so sessions do not survive a restart.
func NewSeedSessions(secret string, secure bool) *SeedSessions {
	key := []byte(secret)
	if len(key) == 0 {
		logger.Warn("SESSION_SECRET not set, using a random session key", nil)
		key = securecookie.GenerateRandomKey(32)
	}

	store := sessions.NewCookieStore(key)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAgeDays * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SeedSessions{store: store}
}

// Middleware loads the visitor session, assigns a session id on first visit
// and exposes it as "session_id" on the context
func (s *SeedSessions) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := s.store.Get(c.Request, sessionName)
		if err != nil {
			// Tampered or stale cookies are replaced by a fresh session
			logger.Warn("Discarding unreadable session", logger.Fields{
				"request_id": c.GetString("request_id"),
				"error":      err.Error(),
			})
		}

		id, _ := session.Values[sessionIDKey].(string)
		if id == "" {
			id = uuid.New().String()
			session.Values[sessionIDKey] = id
			if err := session.Save(c.Request, c.Writer); err != nil {
				logger.Warn("Failed to save new session", logger.Fields{"error": err.Error()})
			}
		}

		c.Set(sessionContextKey, session)
		c.Set("session_id", id)
		c.Next()
	}
}

func currentSession(c *gin.Context) *sessions.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	session, _ := value.(*sessions.Session)
	return session
}

// SessionSeed returns the visitor's seed. Sessions that never edited their
// seed start from music.DefaultSeed.
func SessionSeed(c *gin.Context) string {
	session := currentSession(c)
	if session == nil {
		return music.DefaultSeed
	}
	seed, ok := session.Values[sessionSeedKey].(string)
	if !ok {
		return music.DefaultSeed
	}
	return seed
}

// SetSessionSeed stores seed in the visitor session and writes the cookie
func SetSessionSeed(c *gin.Context, seed string) error {
	session := currentSession(c)
	if session == nil {
		return errNoSession
	}
	session.Values[sessionSeedKey] = seed
	return session.Save(c.Request, c.Writer)
}
