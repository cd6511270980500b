package wechatpay

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"regexp"
	"testing"

	"github.com/stretchr/testify/suite"
)

type SignerTestSuite struct {
	suite.Suite
	key    *rsa.PrivateKey
	signer *Signer
}

func TestSignerSuite(t *testing.T) {
	suite.Run(t, new(SignerTestSuite))
}

func (s *SignerTestSuite) SetupTest() {
	s.key = generateTestKey(s.T())
	s.signer = NewSigner("1900000001", "MCHSERIAL001", s.key)
}

// authHeaderRe разбирает собранный заголовок Authorization на составляющие.
var authHeaderRe = regexp.MustCompile(
	`^WECHATPAY2-SHA256-RSA2048 mchid="([^"]+)",nonce_str="([^"]+)",signature="([^"]+)",timestamp="([^"]+)",serial_no="([^"]+)"$`,
)

func (s *SignerTestSuite) TestAuthorizationHeader() {
	method := "POST"
	path := RouteNativeOrder
	body := []byte(`{"out_trade_no":"GP-1"}`)

	header, err := s.signer.AuthorizationHeader(method, path, body)
	s.Require().NoError(err)

	parts := authHeaderRe.FindStringSubmatch(header)
	s.Require().Len(parts, 6, "заголовок не соответствует схеме")

	mchID, nonce, signatureB64, timestamp, serial := parts[1], parts[2], parts[3], parts[4], parts[5]
	s.Equal("1900000001", mchID)
	s.Equal("MCHSERIAL001", serial)

	// подпись должна проходить проверку публичным ключом мерчанта.
	message := method + "\n" + path + "\n" + timestamp + "\n" + nonce + "\n" + string(body) + "\n"
	hashed := sha256.Sum256([]byte(message))
	signature, sigErr := base64.StdEncoding.DecodeString(signatureB64)
	s.Require().NoError(sigErr)
	s.NoError(rsa.VerifyPKCS1v15(&s.key.PublicKey, crypto.SHA256, hashed[:], signature))
}

// TestAuthorizationHeader_NoReuse проверяет что повторные вызовы не
// переиспользуют nonce и подпись.
func (s *SignerTestSuite) TestAuthorizationHeaderNoReuse() {
	body := []byte(`{}`)

	first, firstErr := s.signer.AuthorizationHeader("POST", RouteNativeOrder, body)
	s.Require().NoError(firstErr)
	second, secondErr := s.signer.AuthorizationHeader("POST", RouteNativeOrder, body)
	s.Require().NoError(secondErr)

	firstParts := authHeaderRe.FindStringSubmatch(first)
	secondParts := authHeaderRe.FindStringSubmatch(second)
	s.Require().Len(firstParts, 6)
	s.Require().Len(secondParts, 6)

	s.NotEqual(firstParts[2], secondParts[2], "nonce не должен повторяться")
	s.NotEqual(firstParts[3], secondParts[3], "подпись не должна повторяться")
}

func (s *SignerTestSuite) TestAuthorizationHeaderEmptyBody() {
	header, err := s.signer.AuthorizationHeader("GET", "/v3/certificates", nil)
	s.Require().NoError(err)
	s.Regexp(authHeaderRe, header)
}
