// Package session wraps the per-browser-session key-value store that the
// cart and wishlist use as their only persistence substrate.
package session

import (
	"encoding/json"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// Flash is a one-shot user-facing message. Kind is "success", "info" or
// "error".
type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Bag is an opaque key-value resource scoped to one session. Values are
// raw bytes; callers own the encoding. Mutations become durable on Save.
type Bag interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte)
	Delete(key string)
	AddFlash(kind, message string)
	Flashes() []Flash
	Save() error
}

// Middleware installs the cookie-backed session store on the router.
func Middleware(name, secret string) gin.HandlerFunc {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 86400 * 14, HttpOnly: true})
	return sessions.Sessions(name, store)
}

// FromContext returns the request's session as a Bag.
func FromContext(c *gin.Context) Bag {
	return &ginBag{s: sessions.Default(c)}
}

type ginBag struct {
	s sessions.Session
}

func (b *ginBag) Get(key string) ([]byte, bool) {
	v := b.s.Get(key)
	if v == nil {
		return nil, false
	}
	s, ok := v.(string)
	if !ok {
		return nil, false
	}
	return []byte(s), true
}

func (b *ginBag) Set(key string, val []byte) { b.s.Set(key, string(val)) }

func (b *ginBag) Delete(key string) { b.s.Delete(key) }

func (b *ginBag) AddFlash(kind, message string) {
	buf, err := json.Marshal(Flash{Kind: kind, Message: message})
	if err != nil {
		return
	}
	b.s.AddFlash(string(buf))
}

// Flashes drains pending messages. Reading consumes them, so the session
// is saved before returning.
func (b *ginBag) Flashes() []Flash {
	raw := b.s.Flashes()
	if len(raw) == 0 {
		return nil
	}
	out := make([]Flash, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var f Flash
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	_ = b.s.Save()
	return out
}

func (b *ginBag) Save() error { return b.s.Save() }
