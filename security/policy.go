// Package security implements the KeyStorage/PolicyContext side of
// message-layer security (spec.md §4.3 "Encryption key installation").
// The actual signing/verifying/encrypting primitives are an external
// collaborator per spec.md §1 ("Security Policy provider... referenced
// only by interface") — this package defines that interface and a
// minimal stdlib-based implementation sufficient to exercise key
// rollover and the receive pipeline's verify/decrypt call site in tests.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"

	"github.com/axmq/uapubsub/status"
)

// PolicyContext is installed once per ReaderGroup security context and
// updated in place on key rollover, preserving its identity across
// token changes (spec.md §4.3: "Key rollover thus preserves the context
// object").
type PolicyContext interface {
	// TokenID returns the currently active security token id.
	TokenID() uint32

	// NonceSequence returns the current nonce sequence number: reset to
	// 1 whenever UpdateKeys installs a different tokenID, and advanced
	// on every subsequent UpdateKeys call under the same token (spec.md
	// §4.3: "If tokenId differs from the current one, reset the nonce
	// sequence to 1").
	NonceSequence() uint32

	// UpdateKeys installs a new (signingKey, encryptingKey, nonce) set,
	// resetting the nonce sequence itself when tokenID changes.
	UpdateKeys(tokenID uint32, signingKey, encryptingKey, nonce []byte)

	// VerifyAndDecrypt authenticates and decrypts payload, given the
	// associated-data header bytes (version/flags/publisher/group/
	// security header) that were not themselves encrypted. It returns
	// the decrypted payload or a status.Error with code InternalError
	// (security failure) on verification failure.
	VerifyAndDecrypt(associatedData, payload, signature []byte) ([]byte, *status.Error)
}

// AesSha256Policy is a minimal AES-CTR + HMAC-SHA256 policy context. It
// is not an OPC UA-certified security suite — those (Aes128-Sha256-
// RsaOaep, Aes256-Sha256-RsaPss) require an RSA/PKI provider outside
// this control plane's scope — but it gives the receive pipeline a real,
// working verify/decrypt path to exercise in tests.
type AesSha256Policy struct {
	tokenID       uint32
	keysInstalled bool
	nonceSeq      uint32
	signingKey    []byte
	encryptingKey []byte
	nonce         []byte
}

// NewAesSha256Policy creates a context with its first installed key set.
func NewAesSha256Policy(tokenID uint32, signingKey, encryptingKey, nonce []byte) *AesSha256Policy {
	p := &AesSha256Policy{}
	p.UpdateKeys(tokenID, signingKey, encryptingKey, nonce)
	return p
}

func (p *AesSha256Policy) TokenID() uint32 { return p.tokenID }

func (p *AesSha256Policy) NonceSequence() uint32 { return p.nonceSeq }

func (p *AesSha256Policy) UpdateKeys(tokenID uint32, signingKey, encryptingKey, nonce []byte) {
	if !p.keysInstalled || tokenID != p.tokenID {
		p.nonceSeq = 1
	} else {
		p.nonceSeq++
	}
	p.keysInstalled = true
	p.tokenID = tokenID
	p.signingKey = append([]byte(nil), signingKey...)
	p.encryptingKey = append([]byte(nil), encryptingKey...)
	p.nonce = append([]byte(nil), nonce...)
}

func (p *AesSha256Policy) VerifyAndDecrypt(associatedData, payload, signature []byte) ([]byte, *status.Error) {
	mac := hmac.New(sha256.New, p.signingKey)
	mac.Write(associatedData)
	mac.Write(payload)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, signature) {
		return nil, status.New(status.InternalError, "security: signature verification failed")
	}

	block, err := aes.NewCipher(padKey(p.encryptingKey))
	if err != nil {
		return nil, status.Wrap(status.InternalError, err, "security: invalid encrypting key")
	}

	iv := padIV(p.nonce)
	out := make([]byte, len(payload))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out, payload)
	return out, nil
}

// padKey widens/truncates to a valid AES key size (16/24/32 bytes).
func padKey(k []byte) []byte {
	out := make([]byte, 32)
	copy(out, k)
	return out
}

// padIV widens/truncates to the AES block size.
func padIV(nonce []byte) []byte {
	out := make([]byte, aes.BlockSize)
	copy(out, nonce)
	return out
}

// PassthroughPolicy is used for MessageSecurityMode NONE: no signature,
// no encryption.
type PassthroughPolicy struct{}

func (PassthroughPolicy) TokenID() uint32                           { return 0 }
func (PassthroughPolicy) NonceSequence() uint32                     { return 0 }
func (PassthroughPolicy) UpdateKeys(uint32, []byte, []byte, []byte) {}
func (PassthroughPolicy) VerifyAndDecrypt(_, payload, _ []byte) ([]byte, *status.Error) {
	return payload, nil
}
