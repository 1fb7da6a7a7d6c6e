package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encryptFixture(t *testing.T, encryptingKey, nonce, plaintext []byte) []byte {
	t.Helper()
	key := make([]byte, 32)
	copy(key, encryptingKey)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	iv := make([]byte, aes.BlockSize)
	copy(iv, nonce)

	out := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(out, plaintext)
	return out
}

func signFixture(signingKey, associatedData, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write(associatedData)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func TestAesSha256Policy_VerifyAndDecryptRoundTrip(t *testing.T) {
	signingKey := []byte("signing-key-material")
	encryptingKey := []byte("0123456789abcdef0123456789abcdef")
	nonce := []byte("nonce-material-1")

	policy := NewAesSha256Policy(1, signingKey, encryptingKey, nonce)

	associatedData := []byte("header-bytes")
	plaintext := []byte("dataset payload bytes")

	ciphertext := encryptFixture(t, encryptingKey, nonce, plaintext)
	signature := signFixture(signingKey, associatedData, ciphertext)

	got, err := policy.VerifyAndDecrypt(associatedData, ciphertext, signature)
	require.Nil(t, err)
	assert.Equal(t, plaintext, got)
}

func TestAesSha256Policy_BadSignatureRejected(t *testing.T) {
	policy := NewAesSha256Policy(1, []byte("k1"), []byte("0123456789abcdef0123456789abcdef"), []byte("nonce"))
	_, err := policy.VerifyAndDecrypt([]byte("ad"), []byte("payload"), []byte("bad-signature"))
	require.NotNil(t, err)
}

func TestKeyStorageManager_RefcountAndRollover(t *testing.T) {
	m := NewManager()

	ks1 := m.Attach("group-a")
	ks2 := m.Attach("group-a")
	assert.Same(t, ks1, ks2, "same group id must share one KeyStorage")
	assert.Equal(t, 2, m.RefCount("group-a"))

	require.Nil(t, m.InstallKeys("group-a", 1, []byte("k1"), []byte("e1"), []byte("n1")))
	ctxAfterFirst := ks1.Policy

	require.Nil(t, m.InstallKeys("group-a", 2, []byte("k2"), []byte("e2"), []byte("n2")))
	assert.Same(t, ctxAfterFirst, ks1.Policy, "key rollover must preserve the PolicyContext identity")
	assert.Equal(t, uint32(2), ks1.Policy.TokenID())

	m.Detach("group-a")
	assert.Equal(t, 1, m.RefCount("group-a"))
	m.Detach("group-a")
	assert.Equal(t, 0, m.RefCount("group-a"))
}

func TestKeyStorageManager_InstallOnUnknownGroup(t *testing.T) {
	m := NewManager()
	err := m.InstallKeys("missing", 1, nil, nil, nil)
	require.NotNil(t, err)
}

func TestPassthroughPolicy(t *testing.T) {
	var p PassthroughPolicy
	payload := []byte("unsigned unencrypted")
	out, err := p.VerifyAndDecrypt(nil, payload, nil)
	require.Nil(t, err)
	assert.Equal(t, payload, out)
	assert.Equal(t, uint32(0), p.TokenID())
}
