package privval

import (
	"errors"
	"fmt"

	"github.com/blockberries/pollberry/types"
)

// Errors
var (
	ErrDoubleSign      = errors.New("double sign attempt")
	ErrNonceRegression = errors.New("nonce regression")
	ErrSignerMismatch  = errors.New("transaction signer does not match key")
	ErrInvalidKeyFile  = errors.New("invalid key file")
)

// TxSigner signs transactions without ever reusing a nonce for a different
// payload.
type TxSigner interface {
	// GetPubKey returns the public key transactions are signed with
	GetPubKey() types.PublicKey

	// SignTx fills in Signer, Nonce (when zero) and Signature
	SignTx(chainID string, tx *types.Transaction) error
}

// LastSignState tracks the last signed transaction
type LastSignState struct {
	Nonce         uint64
	SignBytesHash types.Hash
	Signature     types.Signature
}

// NextNonce returns the nonce the next fresh transaction gets
func (lss *LastSignState) NextNonce() uint64 {
	return lss.Nonce + 1
}

// CheckNonce returns nil if a transaction with nonce may be signed. Signing
// the last nonce again is a double sign unless the payload is identical,
// which the caller detects through IsSame.
func (lss *LastSignState) CheckNonce(nonce uint64) error {
	if nonce == 0 {
		return fmt.Errorf("%w: nonce 0 is reserved", ErrNonceRegression)
	}
	if nonce < lss.Nonce {
		return fmt.Errorf("%w: %d < %d", ErrNonceRegression, nonce, lss.Nonce)
	}
	if nonce == lss.Nonce {
		return ErrDoubleSign
	}
	return nil
}

// IsSame reports whether signBytes is exactly what was signed last
func (lss *LastSignState) IsSame(signBytes []byte) bool {
	return !lss.Signature.IsZero() && lss.SignBytesHash == types.HashBytes(signBytes)
}
