// Package signature provides helper functions for handling the blockchain
// signature needs.
package signature

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// powID is an arbitrary number for signing messages. This will make it
// clear that the signature comes from the powchain network.
// Ethereum and Bitcoin do this as well, but they use the value of 27.
const powID = 29

// =============================================================================

// Hash returns a unique string for the value.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Sign uses the specified private key to sign the data.
func Sign(value any, privateKey *ecdsa.PrivateKey) (v, r, s *big.Int, err error) {

	// Prepare the data for signing.
	data, err := stamp(value)
	if err != nil {
		return nil, nil, nil, err
	}

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, nil, nil, err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, nil, nil, err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, nil, nil, errors.New("invalid signature")
	}

	// Convert the 65 byte signature into the [R|S|V] format.
	v, r, s = toSignatureValues(sig)

	return v, r, s, nil
}

// VerifySignature verifies the signature conforms to our standards and was
// produced over the value by the owner of the specified public key.
func VerifySignature(value any, publicKey string, v, r, s *big.Int) error {
	if v == nil || r == nil || s == nil {
		return errors.New("missing signature values")
	}

	// Check the recovery id is either 0 or 1.
	uintV := v.Uint64() - powID
	if uintV != 0 && uintV != 1 {
		return errors.New("invalid recovery id")
	}

	// Check the signature values are valid.
	if !crypto.ValidateSignatureValues(byte(uintV), r, s, false) {
		return errors.New("invalid signature values")
	}

	pk, err := DecodePublicKey(publicKey)
	if err != nil {
		return err
	}

	data, err := stamp(value)
	if err != nil {
		return err
	}

	// Recover the key that produced this signature and make sure it is the
	// key the value claims to be signed by.
	recovered, err := crypto.SigToPub(data, ToSignatureBytes(v, r, s))
	if err != nil {
		return err
	}

	if !bytes.Equal(crypto.FromECDSAPub(recovered), crypto.FromECDSAPub(pk)) {
		return errors.New("signature does not match public key")
	}

	if !crypto.VerifySignature(crypto.FromECDSAPub(pk), data, ToSignatureBytes(v, r, s)[:crypto.RecoveryIDOffset]) {
		return errors.New("invalid signature")
	}

	return nil
}

// FromAddress extracts the address for the account that signed the data.
func FromAddress(value any, v, r, s *big.Int) (string, error) {

	// Prepare the data for public key extraction.
	data, err := stamp(value)
	if err != nil {
		return "", err
	}

	// Convert the [R|S|V] format into the original 65 bytes.
	sig := ToSignatureBytes(v, r, s)

	// Capture the public key associated with this data and signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return "", err
	}

	// Extract the account address from the public key.
	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// SignatureString returns the signature as a string.
func SignatureString(v, r, s *big.Int) string {
	return hexutil.Encode(ToSignatureBytesWithPowID(v, r, s))
}

// =============================================================================

// EncodePublicKey returns the compressed hex form of the public key that is
// carried inside a transaction.
func EncodePublicKey(publicKey ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.CompressPubkey(&publicKey))
}

// DecodePublicKey converts the compressed hex form back into a public key.
func DecodePublicKey(publicKey string) (*ecdsa.PublicKey, error) {
	data, err := hexutil.Decode(publicKey)
	if err != nil {
		return nil, err
	}

	return crypto.DecompressPubkey(data)
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this data with
// the powchain stamp embedded into the final hash.
func stamp(value any) ([]byte, error) {

	// Marshal the data.
	v, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	// This stamp is used so signatures we produce when signing data
	// are always unique to the powchain network.
	stamp := []byte("\x19Powchain Signed Message:\n32")

	// Hash the stamp and the data hash together in a final 32 byte array
	// that represents the data.
	data := crypto.Keccak256(stamp, crypto.Keccak256(v))

	return data, nil
}

// toSignatureValues converts the signature into the r, s, v values.
func toSignatureValues(sig []byte) (v, r, s *big.Int) {
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:64])
	v = new(big.Int).SetBytes([]byte{sig[64] + powID})

	return v, r, s
}

// ToSignatureBytes converts the r, s, v values into a slice of bytes
// with the removal of the powID.
func ToSignatureBytes(v, r, s *big.Int) []byte {
	sig := make([]byte, crypto.SignatureLength)
	if r.BitLen() > 256 || s.BitLen() > 256 {
		return sig
	}

	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:64])
	sig[64] = byte(v.Uint64() - powID)

	return sig
}

// ToSignatureBytesWithPowID converts the r, s, v values into a slice of bytes
// keeping the powID.
func ToSignatureBytesWithPowID(v, r, s *big.Int) []byte {
	sig := ToSignatureBytes(v, r, s)
	sig[64] = byte(v.Uint64())

	return sig
}
