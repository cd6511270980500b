package wechatpay

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// defaultClockSkew — допустимое расхождение метки времени уведомления с
// часами сервера. Защита от реплея: старое уведомление не пройдет проверку
// даже с валидной подписью.
const defaultClockSkew = 5 * time.Minute

// Verifier проверяет что уведомление действительно исходит от шлюза.
// Пока Verify не вернул nil, телу уведомления доверять нельзя: ни
// расшифровывать, ни тем более применять.
type Verifier struct {
	store *CertStore
	skew  time.Duration
	now   func() time.Time
}

func NewVerifier(store *CertStore) *Verifier {
	return &Verifier{
		store: store,
		skew:  defaultClockSkew,
		now:   time.Now,
	}
}

// SetClockSkew переопределяет окно допустимого расхождения часов.
func (v *Verifier) SetClockSkew(skew time.Duration) *Verifier {
	v.skew = skew
	return v
}

// Verify восстанавливает каноническое сообщение timestamp\nnonce\nbody\n и
// проверяет подпись публичным ключом платформенного сертификата, указанного в
// заголовке serial. Возвращает ErrUnknownSerial, ErrStaleTimestamp либо
// ErrBadSignature; любая из них должна приводить к ответу FAIL, чтобы шлюз
// повторил доставку.
func (v *Verifier) Verify(n Notification) error {
	key, ok := v.store.Get(n.Serial)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSerial, n.Serial)
	}

	ts, tsErr := strconv.ParseInt(n.Timestamp, 10, 64)
	if tsErr != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrStaleTimestamp, n.Timestamp)
	}
	drift := v.now().Sub(time.Unix(ts, 0))
	if drift > v.skew || drift < -v.skew {
		return fmt.Errorf("%w: drift %s", ErrStaleTimestamp, drift)
	}

	signature, sigErr := base64.StdEncoding.DecodeString(n.Signature)
	if sigErr != nil {
		return fmt.Errorf("%w: decoding signature: %s", ErrBadSignature, sigErr.Error())
	}

	message := n.Timestamp + "\n" + n.Nonce + "\n" + string(n.Body) + "\n"
	hashed := sha256.Sum256([]byte(message))

	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, hashed[:], signature); err != nil {
		return fmt.Errorf("%w: %s", ErrBadSignature, err.Error())
	}
	return nil
}
