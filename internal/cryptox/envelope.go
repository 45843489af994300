// Package cryptox implements the at-rest storage envelope: deterministic
// per-conversation key derivation from a master key plus authenticated
// encryption of message bodies (AES-256-GCM, random nonce per message,
// JSON envelope) generalized to a conversation-key model.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// conversationKeySeparator is part of the on-wire contract between
// writer and reader: changing it silently invalidates every stored
// ciphertext, so it is a key rotation, never a code tweak.
const conversationKeySeparator = "|"

// NonceSize is the GCM nonce length used for every message.
const NonceSize = 12

// Envelope is the JSON shape persisted in the content column of the
// message tables: {"ciphertext": base64, "nonce": base64}.
type Envelope struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// DeriveConversationKey computes K_conv = SHA-256(masterKey ||
// sort(participantIDs).join("|")). The sort makes the key independent
// of call-site ordering: encrypting a message from A to B and decrypting
// it while iterating B's contacts must yield the same key.
func DeriveConversationKey(masterKey []byte, participantIDs []string) []byte {
	sorted := append([]string(nil), participantIDs...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write(masterKey)
	h.Write([]byte(strings.Join(sorted, conversationKeySeparator)))
	return h.Sum(nil)
}

// Seal encrypts plaintext under key with a fresh random nonce and
// returns the JSON-serialized envelope ready to store in the content
// column.
func Seal(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	env := Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ErrLegacyContent is returned by ParseEnvelope when content is not
// envelope JSON. Callers treat this as a legacy plaintext row, not a
// hard failure.
var ErrLegacyContent = errors.New("cryptox: content is not an envelope")

// ParseEnvelope attempts to decode content as an Envelope. A parse
// failure means the row predates the envelope format and should be
// returned to the caller verbatim.
func ParseEnvelope(content string) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return Envelope{}, ErrLegacyContent
	}
	if env.Ciphertext == "" || env.Nonce == "" {
		return Envelope{}, ErrLegacyContent
	}
	return env, nil
}

// Open decrypts an Envelope under key. Any failure — bad base64, wrong
// key, tampered ciphertext — returns the underlying error; Decode
// discards it, and the router's history reader shows the
// "[DECRYPTION FAILED]" placeholder instead, so the reason never reaches
// a client.
func Open(key []byte, env Envelope) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", err
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Decode decrypts content under the key derived for participantIDs. If
// content is not envelope JSON it is returned verbatim (legacy
// plaintext tolerance). If it is an envelope but fails to
// decrypt, ok is false and the caller must substitute the
// "[DECRYPTION FAILED]" placeholder.
func Decode(masterKey []byte, participantIDs []string, content string) (plaintext string, ok bool) {
	env, err := ParseEnvelope(content)
	if err != nil {
		return content, true
	}

	key := DeriveConversationKey(masterKey, participantIDs)
	pt, err := Open(key, env)
	if err != nil {
		return "", false
	}
	return pt, true
}
