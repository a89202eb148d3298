package ice

import (
	"crypto/rand"

	"github.com/pkg/errors"
)

// ufragAlphabet and passwordAlphabet follow RFC 8445 Section 5.3's
// requirement that ice-ufrag/ice-pwd use only characters valid in the
// "ice-char" grammar (ALPHA / DIGIT / "+" / "/").
const credentialAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	ufragLength    = 8  // RFC 8445 Section 5.3: ice-ufrag is 4 to 256 characters
	passwordLength = 24 // RFC 8445 Section 5.3: ice-pwd is 22 to 256 characters
)

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "read random bytes")
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = credentialAlphabet[int(b)%len(credentialAlphabet)]
	}
	return string(out), nil
}

// GenerateUfrag returns a new random ICE username fragment.
func GenerateUfrag() (string, error) { return randomString(ufragLength) }

// GeneratePassword returns a new random ICE password.
func GeneratePassword() (string, error) { return randomString(passwordLength) }

// Credentials holds one side's ufrag/password pair.
type Credentials struct {
	Ufrag    string
	Password string
}

// NewCredentials generates a fresh ufrag/password pair.
func NewCredentials() (Credentials, error) {
	ufrag, err := GenerateUfrag()
	if err != nil {
		return Credentials{}, err
	}
	pwd, err := GeneratePassword()
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Ufrag: ufrag, Password: pwd}, nil
}

// Username builds the STUN USERNAME attribute value for a connectivity
// check from the local and remote ufrags, RFC 8445 Section 7.1.2:
// "<responder-ufrag>:<requester-ufrag>".
func Username(localUfrag, remoteUfrag string) string {
	return remoteUfrag + ":" + localUfrag
}
