package privval

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blockberries/pollberry/types"
)

const (
	keyFilePerm   = 0600
	stateFilePerm = 0600
)

// FilePV is a file-based transaction signer. The key and the last signed
// nonce live in two JSON files; the state file is written before a signature
// is released.
type FilePV struct {
	mu sync.Mutex

	keyFilePath   string
	stateFilePath string

	pubKey  types.PublicKey
	privKey ed25519.PrivateKey

	lastSignState LastSignState
}

// FilePVKey represents the key file structure
type FilePVKey struct {
	PubKey  []byte `json:"pub_key"`
	PrivKey []byte `json:"priv_key"`
}

// FilePVState represents the state file structure
type FilePVState struct {
	Nonce         uint64 `json:"nonce"`
	SignBytesHash []byte `json:"sign_bytes_hash,omitempty"`
	Signature     []byte `json:"signature,omitempty"`
}

// NewFilePV loads the signer from disk, generating a key if none exists
func NewFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	pv := &FilePV{
		keyFilePath:   keyFilePath,
		stateFilePath: stateFilePath,
	}
	if err := pv.loadKey(); err != nil {
		return nil, err
	}
	if err := pv.loadState(); err != nil {
		return nil, err
	}
	return pv, nil
}

// GenerateFilePV generates a fresh key, overwriting any existing files
func GenerateFilePV(keyFilePath, stateFilePath string) (*FilePV, error) {
	pv := &FilePV{
		keyFilePath:   keyFilePath,
		stateFilePath: stateFilePath,
	}
	if err := pv.generateKey(); err != nil {
		return nil, err
	}
	if err := pv.saveState(); err != nil {
		return nil, err
	}
	return pv, nil
}

func (pv *FilePV) generateKey() error {
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	pv.pubKey = types.MustNewPublicKey(pubKey)
	pv.privKey = privKey
	return pv.saveKey()
}

func (pv *FilePV) loadKey() error {
	data, err := os.ReadFile(pv.keyFilePath)
	if os.IsNotExist(err) {
		return pv.generateKey()
	}
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}

	var key FilePVKey
	if err := json.Unmarshal(data, &key); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	if len(key.PrivKey) != ed25519.PrivateKeySize {
		return fmt.Errorf("%w: private key is %d bytes", ErrInvalidKeyFile, len(key.PrivKey))
	}
	pubKey, err := types.NewPublicKey(key.PubKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	derived := ed25519.PrivateKey(key.PrivKey).Public().(ed25519.PublicKey)
	if types.MustNewPublicKey(derived) != pubKey {
		return fmt.Errorf("%w: public key does not match private key", ErrInvalidKeyFile)
	}

	pv.pubKey = pubKey
	pv.privKey = key.PrivKey
	return nil
}

func (pv *FilePV) saveKey() error {
	key := FilePVKey{
		PubKey:  pv.pubKey[:],
		PrivKey: pv.privKey,
	}
	data, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}
	return writeFile(pv.keyFilePath, data, keyFilePerm)
}

func (pv *FilePV) loadState() error {
	data, err := os.ReadFile(pv.stateFilePath)
	if os.IsNotExist(err) {
		pv.lastSignState = LastSignState{}
		return pv.saveState()
	}
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}

	var state FilePVState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse state file: %w", err)
	}

	lss := LastSignState{Nonce: state.Nonce}
	if len(state.SignBytesHash) > 0 {
		if lss.SignBytesHash, err = types.NewHash(state.SignBytesHash); err != nil {
			return fmt.Errorf("failed to parse state file: %w", err)
		}
	}
	if len(state.Signature) > 0 {
		if lss.Signature, err = types.NewSignature(state.Signature); err != nil {
			return fmt.Errorf("failed to parse state file: %w", err)
		}
	}
	pv.lastSignState = lss
	return nil
}

func (pv *FilePV) saveState() error {
	state := FilePVState{Nonce: pv.lastSignState.Nonce}
	if !pv.lastSignState.SignBytesHash.IsZero() {
		state.SignBytesHash = pv.lastSignState.SignBytesHash[:]
	}
	if !pv.lastSignState.Signature.IsZero() {
		state.Signature = pv.lastSignState.Signature[:]
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return writeFile(pv.stateFilePath, data, stateFilePerm)
}

// writeFile replaces path atomically through a temp file and rename
func writeFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// GetPubKey returns the public key
func (pv *FilePV) GetPubKey() types.PublicKey {
	return pv.pubKey
}

// LastNonce returns the nonce of the last signed transaction
func (pv *FilePV) LastNonce() uint64 {
	pv.mu.Lock()
	defer pv.mu.Unlock()
	return pv.lastSignState.Nonce
}

// SignTx signs tx. A zero nonce is replaced with the next unused one.
// Signing the last nonce again succeeds only for the identical payload and
// returns the cached signature.
func (pv *FilePV) SignTx(chainID string, tx *types.Transaction) error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	if tx.Signer.IsZero() {
		tx.Signer = pv.pubKey
	} else if tx.Signer != pv.pubKey {
		return ErrSignerMismatch
	}
	if tx.Nonce == 0 {
		tx.Nonce = pv.lastSignState.NextNonce()
	}
	if err := tx.ValidateBasic(); err != nil {
		return err
	}

	signBytes := tx.SignBytes(chainID)
	if err := pv.lastSignState.CheckNonce(tx.Nonce); err != nil {
		if errors.Is(err, ErrDoubleSign) && pv.lastSignState.IsSame(signBytes) {
			tx.Signature = pv.lastSignState.Signature
			return nil
		}
		return err
	}

	sig, err := types.NewSignature(ed25519.Sign(pv.privKey, signBytes))
	if err != nil {
		return err
	}

	prev := pv.lastSignState
	pv.lastSignState = LastSignState{
		Nonce:         tx.Nonce,
		SignBytesHash: types.HashBytes(signBytes),
		Signature:     sig,
	}
	if err := pv.saveState(); err != nil {
		pv.lastSignState = prev
		return err
	}

	tx.Signature = sig
	return nil
}

// Reset clears the last sign state (use with caution!)
func (pv *FilePV) Reset() error {
	pv.mu.Lock()
	defer pv.mu.Unlock()

	pv.lastSignState = LastSignState{}
	return pv.saveState()
}

var _ TxSigner = (*FilePV)(nil)
