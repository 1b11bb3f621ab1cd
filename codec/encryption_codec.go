// Package codec encrypts Temporal payloads so payment events (payer email,
// failure reasons) are not stored in clear text in workflow history.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	commonpb "go.temporal.io/api/common/v1"
	"go.temporal.io/sdk/converter"
	"google.golang.org/protobuf/proto"
)

const (
	// MetadataEncodingEncrypted marks a payload produced by EncryptionCodec
	MetadataEncodingEncrypted = "binary/encrypted"

	// MetadataKeyID names the key a payload was sealed with
	MetadataKeyID = "encryption-key-id"
)

// ErrCiphertextTooShort is returned for payloads shorter than a GCM nonce
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// EncryptionCodec is an AES-256-GCM converter.PayloadCodec
type EncryptionCodec struct {
	keyID string
	aead  cipher.AEAD
}

var _ converter.PayloadCodec = (*EncryptionCodec)(nil)

// NewEncryptionCodec creates a codec for a 32-byte key. keyID is recorded on
// every payload so keys can be rotated later.
func NewEncryptionCodec(keyID string, key []byte) (*EncryptionCodec, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes for AES-256, got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EncryptionCodec{keyID: keyID, aead: aead}, nil
}

// Encode seals each payload, metadata included. Already sealed payloads pass
// through.
func (e *EncryptionCodec) Encode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))

	for i, payload := range payloads {
		if isEncrypted(payload) {
			result[i] = payload
			continue
		}

		plain, err := proto.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}

		sealed, err := e.seal(plain)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}

		result[i] = &commonpb.Payload{
			Metadata: map[string][]byte{
				converter.MetadataEncoding: []byte(MetadataEncodingEncrypted),
				MetadataKeyID:              []byte(e.keyID),
			},
			Data: sealed,
		}
	}

	return result, nil
}

// Decode opens sealed payloads and passes others through
func (e *EncryptionCodec) Decode(payloads []*commonpb.Payload) ([]*commonpb.Payload, error) {
	result := make([]*commonpb.Payload, len(payloads))

	for i, payload := range payloads {
		if !isEncrypted(payload) {
			result[i] = payload
			continue
		}

		if id := string(payload.Metadata[MetadataKeyID]); id != "" && id != e.keyID {
			return nil, fmt.Errorf("payload sealed with unknown key %q", id)
		}

		plain, err := e.open(payload.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt payload: %w", err)
		}

		result[i] = &commonpb.Payload{}
		if err := proto.Unmarshal(plain, result[i]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decrypted payload: %w", err)
		}
	}

	return result, nil
}

func isEncrypted(p *commonpb.Payload) bool {
	return p.GetMetadata() != nil && string(p.GetMetadata()[converter.MetadataEncoding]) == MetadataEncodingEncrypted
}

func (e *EncryptionCodec) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *EncryptionCodec) open(ciphertext []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrCiphertextTooShort
	}
	return e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
}

// NewDataConverter wraps the default converter with an encryption codec.
// Worker and server must use the same key.
func NewDataConverter(keyID string, key []byte) (converter.DataConverter, error) {
	codec, err := NewEncryptionCodec(keyID, key)
	if err != nil {
		return nil, err
	}
	return converter.NewCodecDataConverter(converter.GetDefaultDataConverter(), codec), nil
}
