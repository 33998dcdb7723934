package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/suite"
)

type CryptoTestSuite struct {
	suite.Suite
}

func TestCryptoSuite(t *testing.T) {
	suite.Run(t, new(CryptoTestSuite))
}

func (s *CryptoTestSuite) TestSignMatchesHMAC() {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("client,m1,s1"))
	want := hex.EncodeToString(mac.Sum(nil))

	s.Equal(want, Sign("secret", "client", "m1", "s1"))
}

func (s *CryptoTestSuite) TestSignDependsOnEveryInput() {
	base := Sign("secret", "client", "m1", "s1")

	s.NotEqual(base, Sign("other", "client", "m1", "s1"))
	s.NotEqual(base, Sign("secret", "client2", "m1", "s1"))
	s.NotEqual(base, Sign("secret", "client", "m2", "s1"))
	s.NotEqual(base, Sign("secret", "client", "m1", "s2"))
}

func (s *CryptoTestSuite) TestHMACSigner() {
	signer := HMACSigner("client", "secret")
	s.Equal(Sign("secret", "client", "m1", "s1"), signer("m1", "s1"))
	s.Len(signer("m1", "s1"), 64)
}

func (s *CryptoTestSuite) TestVerify() {
	sig := HashToken("secret", "token")
	s.True(Verify(sig, HashToken("secret", "token")))
	s.False(Verify(sig, HashToken("secret", "token2")))
}

func (s *CryptoTestSuite) TestWebhookSignature() {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(`v0:1700000000:{"event":"x"}`))
	want := "v0=" + hex.EncodeToString(mac.Sum(nil))

	s.Equal(want, WebhookSignature("secret", "1700000000", []byte(`{"event":"x"}`)))
	s.NotEqual(want, WebhookSignature("secret", "1700000001", []byte(`{"event":"x"}`)))
}
