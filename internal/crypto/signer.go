// Package crypto provides data-item signing and encrypted key storage for
// the SDK's wallet identity. Keys are secp256k1; the ledger accepts
// secp256k1-keyed data items alongside native RSA wallets.
package crypto

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/perplexfi/perplex-go/internal/platform/ao"
)

// KeySigner implements ao.Signer using an in-memory secp256k1 private key.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    string
}

// NewKeySigner creates a signer from a hex-encoded secp256k1 private key
// (with or without 0x prefix).
func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid private key: %w", err)
	}

	// The ledger address is the base64url-encoded SHA-256 of the
	// uncompressed public key, 43 characters like any process id.
	pub := ethcrypto.FromECDSAPub(&pk.PublicKey)
	sum := sha256.Sum256(pub)

	return &KeySigner{
		privateKey: pk,
		address:    base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// Address returns the signer's 43-char ledger address.
func (s *KeySigner) Address() string {
	return s.address
}

// SignDataItem signs the deterministic digest of a data item and returns the
// 65-byte recoverable signature.
func (s *KeySigner) SignDataItem(item ao.DataItem) ([]byte, error) {
	sig, err := ethcrypto.Sign(dataItemDigest(item), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign data item: %w", err)
	}
	return sig, nil
}

// dataItemDigest computes the 32-byte signing digest of a data item:
// keccak256 over length-prefixed target, anchor, each tag pair, and the
// payload. Length prefixes keep the encoding injective.
func dataItemDigest(item ao.DataItem) []byte {
	var buf []byte
	appendField := func(b []byte) {
		buf = append(buf, byte(len(b)>>8), byte(len(b)))
		buf = append(buf, b...)
	}

	appendField([]byte(item.Target))
	appendField([]byte(item.Anchor))
	for _, tag := range item.Tags {
		appendField([]byte(tag.Name))
		appendField([]byte(tag.Value))
	}
	appendField(item.Data)

	return ethcrypto.Keccak256(buf)
}
