package types

import (
	"errors"
	"fmt"

	"github.com/blockberries/pollberry/codec"
)

// MaxTxDataSize bounds the instruction payload carried by one transaction.
const MaxTxDataSize = 1232

// Errors
var (
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrTxDataTooLarge     = errors.New("transaction data too large")
	ErrMissingSignature   = errors.New("transaction has no signature")
	ErrInvalidTxSignature = errors.New("invalid transaction signature")
)

// Transaction is the signed envelope a ledger receives: one instruction for one
// program, authorized by one signer.
type Transaction struct {
	Program   Address
	Signer    PublicKey
	Nonce     uint64
	Data      []byte
	Signature Signature
}

// ValidateBasic performs stateless checks
func (tx *Transaction) ValidateBasic() error {
	if tx == nil {
		return ErrInvalidTransaction
	}
	if tx.Program.IsZero() {
		return fmt.Errorf("%w: missing program", ErrInvalidTransaction)
	}
	if tx.Signer.IsZero() {
		return fmt.Errorf("%w: missing signer", ErrInvalidTransaction)
	}
	if len(tx.Data) > MaxTxDataSize {
		return fmt.Errorf("%w: %d > %d", ErrTxDataTooLarge, len(tx.Data), MaxTxDataSize)
	}
	return nil
}

// SignBytes returns the bytes to sign for a transaction
func (tx *Transaction) SignBytes(chainID string) []byte {
	enc := codec.NewEncoder(len(chainID) + len(tx.Data) + 80)
	enc.PutString(chainID)
	enc.PutFixed(tx.Program[:])
	enc.PutFixed(tx.Signer[:])
	enc.PutU64(tx.Nonce)
	enc.PutBytes(tx.Data)
	return enc.Bytes()
}

// Verify checks the signature against the signer key
func (tx *Transaction) Verify(chainID string) error {
	if err := tx.ValidateBasic(); err != nil {
		return err
	}
	if tx.Signature.IsZero() {
		return ErrMissingSignature
	}
	if !VerifySignature(tx.Signer, tx.SignBytes(chainID), tx.Signature) {
		return ErrInvalidTxSignature
	}
	return nil
}

// Hash identifies a transaction. ed25519 signatures are deterministic, so
// resubmitting the same signed payload yields the same hash.
func (tx *Transaction) Hash() Hash {
	data, _ := tx.MarshalBinary()
	return HashBytes(data)
}

// MarshalBinary encodes the transaction including its signature
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	enc := codec.NewEncoder(len(tx.Data) + 144)
	enc.PutFixed(tx.Program[:])
	enc.PutFixed(tx.Signer[:])
	enc.PutU64(tx.Nonce)
	enc.PutBytes(tx.Data)
	enc.PutFixed(tx.Signature[:])
	return enc.Bytes(), nil
}

// UnmarshalBinary decodes a transaction produced by MarshalBinary
func (tx *Transaction) UnmarshalBinary(data []byte) error {
	dec := codec.NewDecoder(data)
	var out Transaction
	dec.Fixed(out.Program[:])
	dec.Fixed(out.Signer[:])
	out.Nonce = dec.U64()
	out.Data = dec.Bytes(MaxTxDataSize)
	dec.Fixed(out.Signature[:])
	if err := dec.Finish(); err != nil {
		return err
	}
	*tx = out
	return nil
}
