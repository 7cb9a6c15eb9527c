package identity

import (
	"strings"
	"testing"
)

func TestCleanStripsDisallowed(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc<script>!! 123", "abcscript 123"},
		{"plain.name-ok_1@example.com", "plain.name-ok_1@example.com"},
		{"semi;colon'quote\"double", "semicolonquotedouble"},
		{"tabs\tand\nnewlines", "tabs\tand\nnewlines"},
		{"", ""},
		{"<<<>>>", ""},
	}

	for _, tc := range cases {
		if got := Clean(tc.in); got != tc.want {
			t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanIdempotent(t *testing.T) {
	inputs := []string{
		"abc<script>!! 123",
		"Alice Smith",
		strings.Repeat("x", 500),
		"user@example.com; DROP TABLE users",
	}

	for _, in := range inputs {
		once := Clean(in)
		twice := Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCleanBoundsLength(t *testing.T) {
	long := strings.Repeat("a", 1000)
	if got := Clean(long); len(got) != 100 {
		t.Errorf("expected 100 chars, got %d", len(got))
	}
}

func TestSanitizeDerivesUserID(t *testing.T) {
	id := Sanitize(Raw{UserName: "Alice"})

	if !strings.HasPrefix(id.UserID, "user_") {
		t.Errorf("derived user id %q missing user_ prefix", id.UserID)
	}
	for _, r := range strings.TrimPrefix(id.UserID, "user_") {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			t.Errorf("derived user id %q contains disallowed rune %q", id.UserID, r)
		}
	}
	if id.UserID != "user_alice" {
		t.Errorf("expected user_alice, got %q", id.UserID)
	}
}

func TestSanitizeNeverEmptyUserID(t *testing.T) {
	id := Sanitize(Raw{})
	if id.UserID == "" {
		t.Fatal("user id must never be empty after sanitation")
	}
	if !strings.HasPrefix(id.UserID, "user_") {
		t.Errorf("fallback user id %q missing user_ prefix", id.UserID)
	}
	if id.UserName != id.UserID {
		t.Errorf("expected user name to fall back to user id, got %q", id.UserName)
	}
}

func TestSanitizeKeepsExplicitID(t *testing.T) {
	id := Sanitize(Raw{UserID: "u-42", UserName: "Bob<script>"})
	if id.UserID != "u-42" {
		t.Errorf("expected u-42, got %q", id.UserID)
	}
	if id.UserName != "Bobscript" {
		t.Errorf("expected Bobscript, got %q", id.UserName)
	}
}

func TestMetadataJSONIsValid(t *testing.T) {
	id := Sanitize(Raw{UserID: "u1", UserName: "Alice", Email: "a@example.com", DBID: "7"})
	meta := id.MetadataJSON()
	if !strings.Contains(meta, `"user_id":"u1"`) {
		t.Errorf("metadata missing user_id: %s", meta)
	}
	if !strings.Contains(meta, `"name":"Alice"`) {
		t.Errorf("metadata missing name: %s", meta)
	}
}
