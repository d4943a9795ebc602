// Package domain contains core concepts of the stream chat relay.
// This file defines member and identity entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// Member is a user's active presence record within one room.
// There is at most one Member entry per user per room.
type Member struct {
	UserID      string
	DisplayName string
	JoinedAt    time.Time
}

// Identity is the verified caller identity attached to a connection.
// Connections without a valid session fall back to Anonymous.
type Identity struct {
	UserID      string
	DisplayName string
	Roles       []string
}

const AnonymousName = "Anonymous"

// Anonymous returns the identity used for unauthenticated connections.
func Anonymous() Identity {
	return Identity{DisplayName: AnonymousName}
}

// HasRole reports whether the identity carries the given role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}
