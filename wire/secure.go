package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
)

/*
Secure session mode. During the handshake both sides generate an ephemeral
NIST P-256 key pair and exchange public keys; the ECDH shared secret is
hashed to an AES-256 key and every subsequent message is sealed with
AES-GCM under a fresh random nonce. The envelope carries nonce, ciphertext,
and authentication tag as separate fields.
*/

////////////////////////////////////////////////////////////////////////////////

const gcmTagSize = 16

// GenerateKeyPair returns an ephemeral P-256 key pair for one session.
func GenerateKeyPair() (*ecdh.PrivateKey, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session key pair: %w", err)
	}
	return key, nil
}

// SessionCipher derives the session AEAD from our private key and the
// peer's public key bytes.
func SessionCipher(priv *ecdh.PrivateKey, peerPublic []byte) (cipher.AEAD, error) {
	pub, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("failed to parse peer public key: %w", err)
	}
	shared, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}
	key := sha256.Sum256(shared)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return aead, nil
}

// seal encrypts an inner frame into an envelope.
func seal(aead cipher.AEAD, inner []byte) (SecureEnv, error) {
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return SecureEnv{}, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, inner, nil)
	split := len(sealed) - gcmTagSize
	return SecureEnv{
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		AuthTag:    sealed[split:],
	}, nil
}

// open decrypts an envelope back to the inner frame.
func open(aead cipher.AEAD, env SecureEnv) ([]byte, error) {
	if len(env.Nonce) != aead.NonceSize() || len(env.AuthTag) != gcmTagSize {
		return nil, ErrMalformedPayload
	}
	sealed := make([]byte, 0, len(env.Ciphertext)+len(env.AuthTag))
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.AuthTag...)
	inner, err := aead.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt envelope: %w", err)
	}
	return inner, nil
}
