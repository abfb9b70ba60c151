// Package privval implements a transaction signer with nonce-reuse prevention.
//
// A signer holds the Ed25519 key a poll creator or voter submits transactions
// with. The ledger rejects a replayed transaction hash, so the signer must
// never produce two different payloads under one nonce.
//
// # Core Interface
//
//	type TxSigner interface {
//	    GetPubKey() types.PublicKey
//	    SignTx(chainID string, tx *types.Transaction) error
//	}
//
// # Nonce Tracking
//
// LastSignState records the last nonce, the hash of its sign bytes and the
// signature. Before signing, the signer checks:
//
//	1. Never sign a nonce lower than the last one
//	2. Sign the last nonce again only for byte-identical sign bytes
//	3. Persist state BEFORE returning the signature
//
// # Implementation
//
// FilePV keeps two files, both written through a temp file and rename:
//
// key.json:
//
//	{
//	  "pub_key": "base64...",
//	  "priv_key": "base64..."
//	}
//
// state.json:
//
//	{
//	  "nonce": 12,
//	  "sign_bytes_hash": "base64...",
//	  "signature": "base64..."
//	}
//
// Only one FilePV instance should use the same key/state files.
//
// # Usage Example
//
//	pv, err := privval.NewFilePV("key.json", "state.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	tx := &types.Transaction{Program: programID, Data: data}
//	if err := pv.SignTx("pollberry-local", tx); err != nil {
//	    log.Fatal(err)
//	}
package privval
