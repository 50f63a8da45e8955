package activitypub

import (
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-fed/httpsig"
)

var signedHeaders = []string{httpsig.RequestTarget, "host", "date", "digest"}

// Signer signs outgoing deliveries with the server actor's key.
type Signer struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewSigner parses a PKCS#1 or PKCS#8 PEM private key.
// keyID format: "https://example.com/actor#main-key"
func NewSigner(privateKeyPem, keyID string) (*Signer, error) {
	key, err := ParsePrivateKey(privateKeyPem)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, keyID: keyID}, nil
}

func (s *Signer) KeyID() string {
	return s.keyID
}

// Sign adds Digest and Signature headers to req. httpsig signers are not safe
// for concurrent use, so one is built per request.
func (s *Signer) Sign(req *http.Request, body []byte) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		signedHeaders,
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	return signer.SignRequest(s.key, s.keyID, req, body)
}

// VerifyRequest verifies the HTTP signature on an incoming request
// Returns the actor URI if valid, error otherwise
func VerifyRequest(req *http.Request, publicKeyPem string) (string, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}

	rsaPubKey, err := ParsePublicKey(publicKeyPem)
	if err != nil {
		return "", err
	}

	if err := verifier.Verify(rsaPubKey, httpsig.RSA_SHA256); err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	// keyId is usually "https://example.com/actor#main-key"
	return strings.Split(verifier.KeyId(), "#")[0], nil
}

const securityVocab = "https://w3id.org/security#"

// SignatureVerifier authenticates inbox POSTs against the key the sender
// publishes under its keyId.
type SignatureVerifier struct {
	loader *ResourceLoader
}

func NewSignatureVerifier(loader *ResourceLoader) *SignatureVerifier {
	return &SignatureVerifier{loader: loader}
}

// Verify checks the signature on req and that its Digest matches body. It
// returns the signing actor.
func (v *SignatureVerifier) Verify(ctx context.Context, req *http.Request, body []byte) (string, error) {
	verifier, err := httpsig.NewVerifier(req)
	if err != nil {
		return "", fmt.Errorf("failed to create verifier: %w", err)
	}
	keyID := verifier.KeyId()

	keyDoc, err := v.loader.FetchObject(ctx, keyID)
	if err != nil {
		return "", fmt.Errorf("fetching key %s: %w", keyID, err)
	}
	publicKeyPem := findPublicKeyPem(keyDoc, keyID)
	if publicKeyPem == "" {
		return "", fmt.Errorf("no public key published under %s", keyID)
	}

	actor, err := VerifyRequest(req, publicKeyPem)
	if err != nil {
		return "", err
	}
	if err := checkDigest(req.Header.Get("Digest"), body); err != nil {
		return "", err
	}
	return actor, nil
}

// findPublicKeyPem reads the PEM for keyID from an actor document or from a
// bare key document. Properties may be compacted or left as full IRIs.
func findPublicKeyPem(doc Object, keyID string) string {
	if keyPem := securityString(doc, "publicKeyPem"); keyPem != "" {
		return keyPem
	}
	keys := append([]any{}, refs(doc["publicKey"])...)
	keys = append(keys, refs(doc[securityVocab+"publicKey"])...)
	var fallback string
	for _, key := range keys {
		keyObj, ok := key.(map[string]any)
		if !ok {
			continue
		}
		keyPem := securityString(keyObj, "publicKeyPem")
		if keyPem == "" {
			continue
		}
		if ID(keyObj) == keyID {
			return keyPem
		}
		if fallback == "" {
			fallback = keyPem
		}
	}
	return fallback
}

func securityString(o Object, term string) string {
	for _, key := range []string{term, securityVocab + term} {
		switch v := o[key].(type) {
		case string:
			return v
		case map[string]any:
			if s, ok := v["@value"].(string); ok {
				return s
			}
		}
	}
	return ""
}

// checkDigest requires a SHA-256 entry in the Digest header matching body.
func checkDigest(header string, body []byte) error {
	sum := sha256.Sum256(body)
	want := base64.StdEncoding.EncodeToString(sum[:])
	for _, entry := range strings.Split(header, ",") {
		algo, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok || !strings.EqualFold(algo, "SHA-256") {
			continue
		}
		if value != want {
			return fmt.Errorf("digest does not match body")
		}
		return nil
	}
	return fmt.Errorf("missing SHA-256 digest")
}

// ParsePrivateKey converts PEM string to *rsa.PrivateKey
func ParsePrivateKey(pemString string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA private key")
	}
	return key, nil
}

// ParsePublicKey converts a PKIX PEM string to *rsa.PublicKey
func ParsePublicKey(pemString string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemString))
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPubKey, ok := pubKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPubKey, nil
}
