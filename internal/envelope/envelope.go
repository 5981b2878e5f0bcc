// Package envelope defines the wire shape of client-encrypted letter content
// and the capability link handed to recipients. The server only ever decodes
// envelopes; encryption and decryption both happen in the browser.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	Version           = 1
	Algorithm         = "AES-GCM"
	KDF               = "PBKDF2"
	DefaultIterations = 100000
)

// ErrNotEnvelope marks content that does not parse as a well-formed versioned
// envelope. Callers handling an encrypted letter must treat it as fatal for
// rendering rather than fall back to the raw text.
var ErrNotEnvelope = errors.New("content is not a valid encrypted envelope")

type Envelope struct {
	Version   int       `json:"version"`
	Encrypted Encrypted `json:"encrypted"`
}

// Encrypted carries the ciphertext and the public key-derivation parameters.
// None of these fields are secret; the passphrase never leaves the client.
type Encrypted struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	Algorithm  string `json:"algorithm"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
}

// Decode parses content as a versioned envelope. It fails closed: anything
// that is not valid JSON of the expected shape, carries an unknown version, or
// holds non-Base64 payload fields yields ErrNotEnvelope.
func Decode(content string) (*Envelope, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()

	var env Envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data", ErrNotEnvelope)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrNotEnvelope, env.Version)
	}
	for name, val := range map[string]string{
		"ciphertext": env.Encrypted.Ciphertext,
		"iv":         env.Encrypted.IV,
		"salt":       env.Encrypted.Salt,
	} {
		if val == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrNotEnvelope, name)
		}
		if _, err := base64.StdEncoding.DecodeString(val); err != nil {
			return nil, fmt.Errorf("%w: %s is not base64", ErrNotEnvelope, name)
		}
	}
	if env.Encrypted.Iterations < 0 {
		return nil, fmt.Errorf("%w: negative iterations", ErrNotEnvelope)
	}
	return &env, nil
}

// Encode renders the canonical JSON form stored in the letters table.
func Encode(env *Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CapabilityURL builds the decrypt-page link carrying every non-secret
// parameter the recipient needs. Parameter order is fixed so rendered mails
// are reproducible. Missing iterations default to DefaultIterations.
func (e *Envelope) CapabilityURL(baseURL string) string {
	iter := e.Encrypted.Iterations
	if iter <= 0 {
		iter = DefaultIterations
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(baseURL, "/"))
	b.WriteString("/decrypt?c=")
	b.WriteString(url.QueryEscape(e.Encrypted.Ciphertext))
	b.WriteString("&i=")
	b.WriteString(url.QueryEscape(e.Encrypted.IV))
	b.WriteString("&s=")
	b.WriteString(url.QueryEscape(e.Encrypted.Salt))
	b.WriteString("&iter=")
	b.WriteString(strconv.Itoa(iter))
	return b.String()
}
