// Package flagstore persists the per-session auth flags that browsers keep in
// session storage: the loop detection marker and the redirect timestamps
// used to break redirect loops.
package flagstore

import (
	"context"
	"errors"
	"fmt"
)

// Flag names a persisted flag.
type Flag string

const (
	AuthLoopDetected    Flag = "authLoopDetected"
	LastAuthRedirect    Flag = "lastAuthRedirect"
	LastPrivateRedirect Flag = "lastPrivateRedirect"
	AuthErrorHandledAt  Flag = "authErrorHandledAt"
	AuthLastRedirectAt  Flag = "authLastRedirectAt"
)

var (
	ErrUnknownFlag    = errors.New("unknown flag")
	ErrGuardOwnedFlag = errors.New("flag is owned by the loop guard")
)

// All lists every known flag.
var All = []Flag{
	AuthLoopDetected,
	LastAuthRedirect,
	LastPrivateRedirect,
	AuthErrorHandledAt,
	AuthLastRedirectAt,
}

// RedirectMarkers lists the flags callers may set directly.
var RedirectMarkers = []Flag{
	LastAuthRedirect,
	LastPrivateRedirect,
	AuthErrorHandledAt,
	AuthLastRedirectAt,
}

// ParseFlag validates a flag name.
func ParseFlag(name string) (Flag, error) {
	for _, f := range All {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFlag, name)
}

// ParseMarker validates a flag name that callers are allowed to set.
func ParseMarker(name string) (Flag, error) {
	f, err := ParseFlag(name)
	if err != nil {
		return "", err
	}
	if f == AuthLoopDetected {
		return "", fmt.Errorf("%w: %q", ErrGuardOwnedFlag, name)
	}
	return f, nil
}

// Store holds flags per session. Values are opaque strings; presence is the
// only thing readers rely on.
type Store interface {
	Set(ctx context.Context, session string, flag Flag, value string) error
	Get(ctx context.Context, session string) (map[Flag]string, error)
	// Clear removes the given flags, or every flag when none are given.
	Clear(ctx context.Context, session string, flags ...Flag) error
}
