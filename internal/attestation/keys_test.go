package attestation

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypairFile_Roundtrip(t *testing.T) {
	key, err := GenerateKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "signer.json")
	require.NoError(t, WriteKeypairFile(path, key))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadKeypairFile(path)
	require.NoError(t, err)
	assert.Equal(t, key, loaded)
}

func TestParseKeypairJSON_Errors(t *testing.T) {
	_, err := ParseKeypairJSON([]byte(`not json`))
	assert.Error(t, err)

	_, err = ParseKeypairJSON([]byte(`[1,2,3]`))
	assert.Error(t, err)

	key := testKey(t, 3)
	raw := make([]byte, 0, 256)
	raw = append(raw, '[')
	for i, b := range key {
		if i > 0 {
			raw = append(raw, ',')
		}
		v := int(b)
		if i == 40 {
			v = 300
		}
		raw = append(raw, []byte(strconv.Itoa(v))...)
	}
	raw = append(raw, ']')
	_, err = ParseKeypairJSON(raw)
	assert.Error(t, err, "byte out of range")
}

func TestParseSecretKey(t *testing.T) {
	key := testKey(t, 5)

	parsed, err := ParseSecretKey(EncodeSecretKey(key))
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	// Mismatched public half.
	bad := append([]byte(nil), key...)
	bad[63] ^= 0x01
	_, err = ParseSecretKey(EncodeSecretKey(bad))
	assert.Error(t, err)

	_, err = ParseSecretKey("0OIl")
	assert.Error(t, err, "invalid base58 alphabet")
}

func TestParsePublicKey_WrongLength(t *testing.T) {
	_, err := ParsePublicKey(EncodeSecretKey(testKey(t, 1)))
	assert.Error(t, err)
}
