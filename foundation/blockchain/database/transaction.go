package database

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
)

// =============================================================================

// Tx is the transactional information between two parties.
type Tx struct {
	FromKey   string    `json:"from_key"`  // Compressed public key of the sender, the signature is checked against it.
	ToID      AccountID `json:"to"`        // Account receiving the value of the transaction.
	Amount    uint64    `json:"amount"`    // Value transferred by this transaction.
	Nonce     uint64    `json:"nonce"`     // Uniqueness marker supplied by the sender.
	TimeStamp uint64    `json:"timestamp"` // Time the transaction was created.
}

// NewTx constructs a new transaction.
func NewTx(toID AccountID, amount uint64, nonce uint64, timeStamp uint64) (Tx, error) {
	if !toID.IsAccountID() {
		return Tx{}, fmt.Errorf("to account is not properly formatted")
	}

	tx := Tx{
		ToID:      toID,
		Amount:    amount,
		Nonce:     nonce,
		TimeStamp: timeStamp,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction. The public key
// of the signer is embedded into the transaction before signing.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {

	// Validate the to account address is a valid address.
	if !tx.ToID.IsAccountID() {
		return SignedTx{}, fmt.Errorf("to account is not properly formatted")
	}

	tx.FromKey = signature.EncodePublicKey(privateKey.PublicKey)

	// Sign the transaction with the private key to produce a signature.
	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	// Construct the signed transaction by adding the signature
	// in the [R|S|V] format.
	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 29 or 30 with powID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// Validate verifies the transaction fields are well formed and the signature
// was produced by the embedded public key over the other fields.
func (tx SignedTx) Validate() error {
	from, err := tx.FromAccount()
	if err != nil {
		return NewTxError(MalformedFields, "invalid sender key: %s", err)
	}

	if !tx.ToID.IsAccountID() {
		return NewTxError(MalformedFields, "invalid account for to account")
	}

	if tx.Amount == 0 {
		return NewTxError(MalformedFields, "amount must be greater than zero")
	}

	if strings.EqualFold(string(from), string(tx.ToID)) {
		return NewTxError(MalformedFields, "sender and receiver are the same account")
	}

	if err := signature.VerifySignature(tx.Tx, tx.FromKey, tx.V, tx.R, tx.S); err != nil {
		return NewTxError(BadSignature, "%s", err)
	}

	return nil
}

// ID returns the identity of the transaction. Two transactions with the same
// content and signature share the same identity.
func (tx SignedTx) ID() string {
	return signature.Hash(tx)
}

// FromAccount returns the account id of the embedded sender key.
func (tx SignedTx) FromAccount() (AccountID, error) {
	pk, err := signature.DecodePublicKey(tx.FromKey)
	if err != nil {
		return "", err
	}

	return PublicKeyToAccountID(*pk), nil
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	if tx.V == nil || tx.R == nil || tx.S == nil {
		return ""
	}
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	from, err := tx.FromAccount()
	if err != nil {
		from = "unknown"
	}

	return fmt.Sprintf("%s:%d", from, tx.Nonce)
}
