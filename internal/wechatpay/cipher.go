package wechatpay

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

// apiKeySize — размер симметричного ключа APIv3 (AES-256).
const apiKeySize = 32

// DecryptAES256GCM расшифровывает ресурс уведомления: AEAD_AES_256_GCM,
// 96-битный nonce, 128-битный тег аутентификации в хвосте шифртекста.
// associatedData передается в проверку тега как есть — любое расхождение
// (подмена контекста, битый шифртекст, чужой ключ) дает ErrDecrypt, а не
// "почти правильный" ответ.
func DecryptAES256GCM(key []byte, nonce, associatedData, ciphertextB64 string) ([]byte, error) {
	if len(key) != apiKeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrDecrypt, apiKeySize, len(key))
	}

	ciphertext, b64Err := base64.StdEncoding.DecodeString(ciphertextB64)
	if b64Err != nil {
		return nil, fmt.Errorf("%w: decoding ciphertext: %s", ErrDecrypt, b64Err.Error())
	}

	block, blockErr := aes.NewCipher(key)
	if blockErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecrypt, blockErr.Error())
	}
	gcm, gcmErr := cipher.NewGCM(block)
	if gcmErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecrypt, gcmErr.Error())
	}

	// nonce приходит извне; gcm.Open паникует на неверной длине вместо ошибки.
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", ErrDecrypt, gcm.NonceSize(), len(nonce))
	}

	plaintext, openErr := gcm.Open(nil, []byte(nonce), ciphertext, []byte(associatedData))
	if openErr != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecrypt, openErr.Error())
	}
	return plaintext, nil
}
