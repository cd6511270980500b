package wechatpay

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

// generateTestKey генерирует одноразовую RSA пару для тестов подписи.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// encryptAES256GCM — обратная операция к DecryptAES256GCM, нужна только тестам:
// шифрует plaintext и возвращает base64(шифртекст||тег).
func encryptAES256GCM(t *testing.T, key []byte, nonce, associatedData string, plaintext []byte) string {
	t.Helper()

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	sealed := gcm.Seal(nil, []byte(nonce), plaintext, []byte(associatedData))
	return base64.StdEncoding.EncodeToString(sealed)
}

// signNotification подписывает каноническое сообщение уведомления ключом
// "платформы" так, как это делает шлюз.
func signNotification(t *testing.T, key *rsa.PrivateKey, timestamp, nonce string, body []byte) string {
	t.Helper()

	message := timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	hashed := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hashed[:])
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(signature)
}
