package ice

import "testing"

func TestGenerateUfragLength(t *testing.T) {
	u, err := GenerateUfrag()
	if err != nil {
		t.Fatal(err)
	}
	if len(u) != ufragLength {
		t.Errorf("got length %d, want %d", len(u), ufragLength)
	}
	for _, r := range u {
		if !containsRune(credentialAlphabet, r) {
			t.Errorf("ufrag contains invalid ice-char %q", r)
		}
	}
}

func TestGeneratePasswordLength(t *testing.T) {
	p, err := GeneratePassword()
	if err != nil {
		t.Fatal(err)
	}
	if len(p) != passwordLength {
		t.Errorf("got length %d, want %d", len(p), passwordLength)
	}
}

func TestNewCredentialsAreDistinct(t *testing.T) {
	a, err := NewCredentials()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewCredentials()
	if err != nil {
		t.Fatal(err)
	}
	if a.Ufrag == b.Ufrag {
		t.Error("expected two independently generated ufrags to differ")
	}
	if a.Password == b.Password {
		t.Error("expected two independently generated passwords to differ")
	}
}

func TestUsernameOrdering(t *testing.T) {
	got := Username("local-ufrag", "remote-ufrag")
	want := "remote-ufrag:local-ufrag"
	if got != want {
		t.Errorf("Username() = %q, want %q", got, want)
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
