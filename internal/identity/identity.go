// Package identity turns untrusted caller-supplied identity fields into
// strings that are safe to embed in room names, token metadata, and logs.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"strings"
)

const maxFieldLen = 100

var (
	// Characters permitted in sanitized fields. Everything else is stripped.
	disallowed = regexp.MustCompile(`[^A-Za-z0-9_@.\-\s]`)
	// Characters permitted in a derived user id slug.
	slugDisallowed = regexp.MustCompile(`[^a-z0-9_]`)
)

// Raw carries the untrusted identity fields of a connection request.
type Raw struct {
	UserID   string
	UserName string
	Email    string
	DBID     string
}

// Identity is the sanitized form of Raw. UserID is always non-empty.
type Identity struct {
	UserID   string
	UserName string
	Email    string
	DBID     string
}

// Clean strips characters outside the allow-list and truncates to a
// bounded length. Idempotent; never fails.
func Clean(s string) string {
	s = disallowed.ReplaceAllString(s, "")
	if len(s) > maxFieldLen {
		// The allow-list is ASCII-only, so byte slicing cannot split a rune.
		s = s[:maxFieldLen]
	}
	return s
}

// Sanitize derives a safe Identity from raw input. When no user id is
// supplied one is derived from the user name; when that is empty too, a
// random id is generated so every caller still lands in its own room.
func Sanitize(raw Raw) Identity {
	id := Identity{
		UserID:   Clean(raw.UserID),
		UserName: Clean(raw.UserName),
		Email:    Clean(raw.Email),
		DBID:     Clean(raw.DBID),
	}

	if id.UserID == "" {
		id.UserID = deriveUserID(id.UserName)
	}
	if id.UserName == "" {
		id.UserName = id.UserID
	}
	return id
}

// DisplayName returns the participant name to publish into the room.
func (id Identity) DisplayName() string {
	if id.UserName != "" {
		return id.UserName
	}
	return id.UserID
}

// MetadataJSON renders the identity as participant metadata for the
// agent to read. Fields are already sanitized, but marshaling keeps the
// result well-formed regardless.
func (id Identity) MetadataJSON() string {
	data, err := json.Marshal(map[string]string{
		"user_id":    id.UserID,
		"name":       id.UserName,
		"user_email": id.Email,
		"user_db_id": id.DBID,
	})
	if err != nil {
		return "{}"
	}
	return string(data)
}

func deriveUserID(userName string) string {
	slug := slugDisallowed.ReplaceAllString(strings.ToLower(userName), "")
	if slug == "" {
		slug = randomSuffix()
	}
	return "user_" + slug
}

func randomSuffix() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "anonymous"
	}
	return hex.EncodeToString(buf)
}
