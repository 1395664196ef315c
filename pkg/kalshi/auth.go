package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Signer produces the request signature headers the exchange requires:
// RSA-PSS over timestamp + method + path.
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
}

// NewSigner builds a Signer from a PEM-encoded RSA private key.
func NewSigner(keyID string, pemBytes []byte) (*Signer, error) {
	if keyID == "" {
		return nil, errors.New("kalshi: empty API key id")
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("kalshi: no PEM block in private key")
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("kalshi: parse PKCS1 key: %w", err)
		}
		key = k
	default:
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("kalshi: parse PKCS8 key: %w", err)
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("kalshi: private key is not RSA")
		}
		key = rsaKey
	}
	return &Signer{keyID: keyID, key: key}, nil
}

// LoadSigner reads the key from a file path.
func LoadSigner(keyID, path string) (*Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: read private key: %w", err)
	}
	return NewSigner(keyID, pemBytes)
}

// Sign signs method+path at the given time and returns the base64 signature
// and the millisecond timestamp string that was signed.
func (s *Signer) Sign(method, path string, at time.Time) (sig, timestamp string, err error) {
	timestamp = strconv.FormatInt(at.UnixMilli(), 10)
	msg := timestamp + method + path
	digest := sha256.Sum256([]byte(msg))

	raw, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", "", fmt.Errorf("kalshi: sign request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), timestamp, nil
}

// Authorize stamps the three auth headers onto a request.
func (s *Signer) Authorize(req *http.Request, at time.Time) error {
	sig, ts, err := s.Sign(req.Method, req.URL.Path, at)
	if err != nil {
		return err
	}
	req.Header.Set("KALSHI-ACCESS-KEY", s.keyID)
	req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
	return nil
}

// Verify checks a signature against the signer's public key. Used in tests
// and in replay tooling; the exchange does the real verification.
func (s *Signer) Verify(method, path, timestamp, sig string) error {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("kalshi: decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(timestamp + method + path))
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, digest[:], raw, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
}
