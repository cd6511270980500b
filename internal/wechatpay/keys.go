package wechatpay

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// ParsePrivateKey разбирает приватный ключ мерчанта из PEM (PKCS#8 или PKCS#1).
// Ошибка здесь — ошибка конфигурации: приложение с ней стартовать не должно.
func ParsePrivateKey(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("parse private key: no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("parse private key: not an RSA key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %s", err.Error())
	}
	return rsaKey, nil
}

// ParseCertificate разбирает сертификат платформы из PEM. Возвращает серийный
// номер в том виде, в котором шлюз передает его в заголовке wechatpay-serial
// (верхний регистр hex), и публичный ключ.
func ParseCertificate(pemData []byte) (serial string, key *rsa.PublicKey, err error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return "", nil, errors.New("parse certificate: no PEM block found")
	}
	cert, certErr := x509.ParseCertificate(block.Bytes)
	if certErr != nil {
		return "", nil, fmt.Errorf("parse certificate: %s", certErr.Error())
	}
	rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return "", nil, errors.New("parse certificate: not an RSA public key")
	}
	return fmt.Sprintf("%X", cert.SerialNumber), rsaKey, nil
}
