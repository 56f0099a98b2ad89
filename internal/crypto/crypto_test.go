package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karzamisca/TaskManager-sub000/internal/database"
)

func useTestDB(t *testing.T) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.Close()
		database.DB = prev
	})
}

func TestEncryptDecrypt(t *testing.T) {
	useTestDB(t)

	tok, err := Encrypt("sftp-password")
	require.NoError(t, err)
	assert.NotEqual(t, "sftp-password", tok)

	plain, err := Decrypt(tok)
	require.NoError(t, err)
	assert.Equal(t, "sftp-password", plain)

	stored, err := database.GetSetting(keySetting)
	require.NoError(t, err)
	assert.NotEmpty(t, stored, "key is generated on first use")
}

func TestDecrypt_Empty(t *testing.T) {
	useTestDB(t)
	plain, err := Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, plain)
}

func TestDecrypt_WrongKey(t *testing.T) {
	useTestDB(t)
	tok, err := Encrypt("secret")
	require.NoError(t, err)

	require.NoError(t, database.DeleteSetting(keySetting))
	_, err = Decrypt(tok)
	assert.Error(t, err)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "****", Mask("abc"))
	assert.Equal(t, "****6789", Mask("123456789"))
}
