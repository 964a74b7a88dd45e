// Package identity turns connection credentials into participant identities.
package identity

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"chatrelay/backend/internal/config"
)

// ErrInvalidUsername is returned for names that cannot serve as an identity.
var ErrInvalidUsername = errors.New("invalid username")

// Verifier resolves a credential to the username it encodes.
type Verifier interface {
	Verify(token string) (string, error)
}

// Identity is the resolved participant behind a connection.
type Identity struct {
	Username string
	Guest    bool
}

// Resolver assigns an identity to every inbound connection. It never fails:
// bad credentials degrade to the declared name, and no usable name yields a guest.
type Resolver struct {
	verifier Verifier
	logger   *slog.Logger

	mu     sync.Mutex
	guests map[string]struct{}
}

func NewResolver(v Verifier, logger *slog.Logger) *Resolver {
	return &Resolver{
		verifier: v,
		logger:   logger,
		guests:   make(map[string]struct{}),
	}
}

// Resolve picks the identity for a connection. connectionID must be unique per
// connection; guest names are derived from it.
func (r *Resolver) Resolve(credential, declared, connectionID string) Identity {
	if credential != "" && r.verifier != nil {
		username, err := r.verifier.Verify(credential)
		if err == nil {
			return Identity{Username: username}
		}
		r.logger.Warn("credential rejected, continuing without it",
			"connection", connectionID, "error", err)
	}

	declared = strings.TrimSpace(declared)
	if declared != "" {
		if err := ValidateUsername(declared); err == nil {
			return Identity{Username: declared}
		}
		r.logger.Warn("declared username rejected", "connection", connectionID, "username", declared)
	}

	return Identity{Username: r.guestName(connectionID), Guest: true}
}

// guestName takes the shortest prefix of the connection id (at least six
// characters) not yet handed out in this process.
func (r *Resolver) guestName(connectionID string) string {
	suffix := strings.ReplaceAll(connectionID, "-", "")
	if suffix == "" {
		suffix = "anon"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for n := min(6, len(suffix)); n <= len(suffix); n++ {
		name := config.GuestPrefix + suffix[:n]
		if _, taken := r.guests[name]; !taken {
			r.guests[name] = struct{}{}
			return name
		}
	}
	// Same connection id resolved twice.
	return config.GuestPrefix + suffix
}

// ValidateUsername accepts 1..MaxUsernameLength printable runes without
// surrounding whitespace or the private-room separator.
func ValidateUsername(name string) error {
	if name == "" || name != strings.TrimSpace(name) {
		return ErrInvalidUsername
	}
	if utf8.RuneCountInString(name) > config.MaxUsernameLength {
		return ErrInvalidUsername
	}
	for _, r := range name {
		if r == '|' || !unicode.IsPrint(r) {
			return ErrInvalidUsername
		}
	}
	return nil
}
