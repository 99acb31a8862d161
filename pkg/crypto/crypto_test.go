package crypto

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0xA5}, SecretKeyLength)
}

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	for _, plaintext := range []string{
		"sk-proj-abcdef0123456789",
		"",
		"exactly-16-bytes",
		strings.Repeat("long secret ", 50),
	} {
		sealed, err := sealer.Seal(plaintext)
		require.NoError(t, err)

		ivHex, dataHex, ok := strings.Cut(sealed, ":")
		require.True(t, ok, "sealed value should be iv:data")
		assert.Len(t, ivHex, 32)
		assert.NotEmpty(t, dataHex)

		opened, err := sealer.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, plaintext, opened)
	}
}

func TestSealer_FreshIVPerSeal(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	a, err := sealer.Seal("same secret")
	require.NoError(t, err)
	b, err := sealer.Seal("same secret")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestSealer_BadKeyLength(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrBadKeyLength)

	_, err = NewSealer(bytes.Repeat([]byte{1}, 33))
	assert.ErrorIs(t, err, ErrBadKeyLength)
}

func TestSealer_OpenRejectsMalformed(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)

	for _, sealed := range []string{
		"",
		"no-separator",
		"zz:zz",
		"abcd:1234",                          // IV too short
		strings.Repeat("ab", 16) + ":abcdef", // data not block aligned
		strings.Repeat("ab", 16) + ":",       // empty data
	} {
		_, err := sealer.Open(sealed)
		assert.ErrorIs(t, err, ErrCiphertextFormat, "input %q", sealed)
	}
}

func TestSealer_OpenRejectsWrongKey(t *testing.T) {
	sealer, err := NewSealer(testKey())
	require.NoError(t, err)
	other, err := NewSealer(bytes.Repeat([]byte{0x5A}, SecretKeyLength))
	require.NoError(t, err)

	sealed, err := sealer.Seal("sk-proj-secret")
	require.NoError(t, err)

	opened, err := other.Open(sealed)
	if err == nil {
		// Wrong-key CBC decryption yields garbage; on the rare chance the
		// padding bytes happen to validate, the plaintext still must not
		// match.
		assert.NotEqual(t, "sk-proj-secret", opened)
	} else {
		assert.ErrorIs(t, err, ErrBadPadding)
	}
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.True(t, CheckPassword(hash, "correct horse battery staple"))
	assert.False(t, CheckPassword(hash, "wrong password"))
	assert.False(t, CheckPassword("not-a-hash", "anything"))
}

func TestSessionSigner_IssueAndVerify(t *testing.T) {
	signer := NewSessionSigner([]byte("session-secret"))

	value := signer.Issue(42)
	userID, err := signer.Verify(value)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestSessionSigner_RejectsTampering(t *testing.T) {
	signer := NewSessionSigner([]byte("session-secret"))
	value := signer.Issue(42)

	// Flip a character in the encoded value.
	mutated := []byte(value)
	if mutated[0] == 'A' {
		mutated[0] = 'B'
	} else {
		mutated[0] = 'A'
	}
	_, err := signer.Verify(string(mutated))
	assert.ErrorIs(t, err, ErrSessionInvalid)

	// A value signed with a different secret fails too.
	other := NewSessionSigner([]byte("different-secret"))
	_, err = signer.Verify(other.Issue(42))
	assert.ErrorIs(t, err, ErrSessionInvalid)

	_, err = signer.Verify("not base64 !!!")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestSessionSigner_RejectsExpired(t *testing.T) {
	signer := NewSessionSigner([]byte("session-secret"))
	signer.now = func() time.Time { return time.Now().Add(-SessionTTL - time.Hour) }
	value := signer.Issue(7)

	signer.now = time.Now
	_, err := signer.Verify(value)
	assert.ErrorIs(t, err, ErrSessionExpired)
}
