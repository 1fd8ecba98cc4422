package service

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	domainauth "github.com/chambahq/identity-core/internal/domain/auth"
)

// currentSessionKey is the single entry key: the core tracks one signed-in
// session per orchestrator instance.
const currentSessionKey = "current"

// sessionCache holds the last-resolved session in process memory so session
// checks inside the freshness window need no I/O. The go-cache TTL is a
// backstop; the orchestrator always re-checks freshness explicitly against
// its own clock.
type sessionCache struct {
	c *gocache.Cache
}

func newSessionCache(window time.Duration) *sessionCache {
	return &sessionCache{c: gocache.New(window, 10*time.Minute)}
}

func (sc *sessionCache) Get() (domainauth.Session, bool) {
	v, ok := sc.c.Get(currentSessionKey)
	if !ok {
		return domainauth.Session{}, false
	}
	sess, ok := v.(domainauth.Session)
	return sess, ok
}

func (sc *sessionCache) Put(sess domainauth.Session) {
	sc.c.Set(currentSessionKey, sess, gocache.DefaultExpiration)
}

func (sc *sessionCache) Clear() {
	sc.c.Delete(currentSessionKey)
}
