// Package wechatpay реализует протокольный слой WeChat Pay API v3: подпись
// исходящих запросов, проверку подписи и расшифровку входящих уведомлений,
// HTTP клиент шлюза.
package wechatpay

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

const authSchema = "WECHATPAY2-SHA256-RSA2048"

// Signer строит заголовок Authorization для запросов к шлюзу.
type Signer struct {
	mchID    string
	serialNo string
	key      *rsa.PrivateKey
	now      func() time.Time
}

func NewSigner(mchID, serialNo string, key *rsa.PrivateKey) *Signer {
	return &Signer{
		mchID:    mchID,
		serialNo: serialNo,
		key:      key,
		now:      time.Now,
	}
}

// AuthorizationHeader подписывает запрос и возвращает готовое значение заголовка
// Authorization. Каноническое сообщение: метод, путь (с query), unix-время,
// одноразовый nonce и тело запроса, каждый элемент завершается переводом строки.
// Повторные вызовы дают разные nonce и, как следствие, разные подписи.
func (s *Signer) AuthorizationHeader(method, path string, body []byte) (string, error) {
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	nonce, nonceErr := generateNonce()
	if nonceErr != nil {
		return "", fmt.Errorf("generating nonce: %s", nonceErr.Error())
	}

	signature, signErr := s.sign(method, path, timestamp, nonce, body)
	if signErr != nil {
		return "", fmt.Errorf("signing request: %s", signErr.Error())
	}

	return fmt.Sprintf(
		`%s mchid="%s",nonce_str="%s",signature="%s",timestamp="%s",serial_no="%s"`,
		authSchema, s.mchID, nonce, signature, timestamp, s.serialNo,
	), nil
}

// sign подписывает каноническое сообщение ключом мерчанта (RSA-SHA256) и
// возвращает подпись в base64.
func (s *Signer) sign(method, path, timestamp, nonce string, body []byte) (string, error) {
	message := method + "\n" + path + "\n" + timestamp + "\n" + nonce + "\n" + string(body) + "\n"

	hashed := sha256.Sum256([]byte(message))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, hashed[:])
	if err != nil {
		return "", err //nolint:wrapcheck
	}
	return base64.StdEncoding.EncodeToString(signature), nil
}

func generateNonce() (string, error) {
	buf := make([]byte, 16) //nolint:mnd
	if _, err := rand.Read(buf); err != nil {
		return "", err //nolint:wrapcheck
	}
	return hex.EncodeToString(buf), nil
}
