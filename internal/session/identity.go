package session

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const identityKey = "session_id"

// Identity lazily creates one correlation token per store scope. The token
// groups every activity event and outgoing request made within that scope;
// uniqueness is probabilistic (creation time + random suffix), good enough
// for correlation but not a security credential.
type Identity struct {
	store Store

	mu     sync.Mutex
	cached string
}

func NewIdentity(store Store) *Identity {
	return &Identity{store: store}
}

// GetOrCreate returns the scope's token, minting and persisting it on first
// use. Every later call in the same scope returns the identical value.
func (i *Identity) GetOrCreate() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cached != "" {
		return i.cached, nil
	}

	value, ok, err := i.store.Get(identityKey)
	if err != nil {
		return "", fmt.Errorf("read session id: %w", err)
	}
	if ok && value != "" {
		i.cached = value
		return value, nil
	}

	token := newToken()
	if err := i.store.Set(identityKey, token); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}

	i.cached = token
	return token, nil
}

// Current returns the token if one exists without creating it.
func (i *Identity) Current() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.cached != "" {
		return i.cached, true
	}

	value, ok, err := i.store.Get(identityKey)
	if err != nil {
		log.Printf("Could not read session id: %v", err)
		return "", false
	}
	if ok {
		i.cached = value
	}
	return value, ok
}

func newToken() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("session-%d-%s", time.Now().UnixMilli(), suffix)
}
