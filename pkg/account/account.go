// Package account holds the signed-in identity state shared between the
// connection layer and telemetry.
package account

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalidJID is returned for addresses that are not of the form
// local@domain[/resource].
var ErrInvalidJID = errors.New("invalid JID")

// JID is a parsed Jabber identifier. Only the parts this module needs are
// kept; full stanza-level addressing stays in the external core library.
type JID struct {
	Local    string
	Domain   string
	Resource string
}

// ParseJID splits local@domain[/resource]. Local and domain must both be
// non-empty.
func ParseJID(address string) (JID, error) {
	local, rest, ok := strings.Cut(address, "@")
	if !ok || local == "" {
		return JID{}, fmt.Errorf("%w: %q", ErrInvalidJID, address)
	}

	domain, resource, _ := strings.Cut(rest, "/")
	if domain == "" {
		return JID{}, fmt.Errorf("%w: %q", ErrInvalidJID, address)
	}

	return JID{Local: local, Domain: domain, Resource: resource}, nil
}

// Bare returns the JID without its resource part.
func (j JID) Bare() string {
	return j.Local + "@" + j.Domain
}

func (j JID) String() string {
	if j.Resource == "" {
		return j.Bare()
	}
	return j.Bare() + "/" + j.Resource
}

// Store tracks the currently signed-in account. The zero value is a valid,
// signed-out store. It implements telemetry.IdentitySource: before sign-in
// both Domain and Principal return empty strings, which makes the dispatcher
// drop events instead of sending placeholder hashes.
type Store struct {
	mu  sync.RWMutex
	jid JID
	set bool
}

// SignIn records the given address as the current identity.
func (s *Store) SignIn(address string) error {
	jid, err := ParseJID(address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jid = jid
	s.set = true
	return nil
}

// SignOut clears the current identity.
func (s *Store) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jid = JID{}
	s.set = false
}

// Domain returns the signed-in server domain, or "" when signed out.
func (s *Store) Domain() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jid.Domain
}

// Principal returns the signed-in bare JID, or "" when signed out.
func (s *Store) Principal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return ""
	}
	return s.jid.Bare()
}
