package agent

import "sync"

// localCreds holds the agent's own ufrag/password, generated once at
// construction and readable concurrently by every stream's Pace Maker
// and the connectivity-check server.
type localCreds struct {
	mu       sync.RWMutex
	ufrag    string
	password string
}

// LocalCredentials returns the agent's own ufrag and password, sent in
// the USERNAME/MESSAGE-INTEGRITY of every incoming check's response.
func (a *Agent) LocalCredentials() (ufrag, password string) {
	a.creds.mu.RLock()
	defer a.creds.mu.RUnlock()
	return a.creds.ufrag, a.creds.password
}

// SetLocalCredentials overrides the generated ufrag/password, used when
// the caller negotiates credentials out of band (e.g. via SDP) instead
// of letting the agent generate its own.
func (a *Agent) SetLocalCredentials(ufrag, password string) {
	a.creds.mu.Lock()
	a.creds.ufrag = ufrag
	a.creds.password = password
	a.creds.mu.Unlock()
}
