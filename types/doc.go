// Package types defines the identities shared by every pollberry package.
//
// # Core Types
//
// Address: 32-byte identifier of an account's storage slot. Program ids are
// addresses. Printed and parsed as base58.
//
// PublicKey: ed25519 key of a transaction signer. A voter receipt stores the
// voting key.
//
// Hash, Signature: SHA-256 digests and ed25519 signatures.
//
// Transaction: the signed envelope a ledger executes. It names one program,
// one signer, a nonce and the encoded instruction bytes.
//
// # Address Derivation
//
// Entities are never looked up through an index. Each one lives at an address
// derived from its kind and its human key material:
//
//	poll   := types.PollAddress(program, "Lang")
//	voter  := types.VoterAddress(program, poll, signerKey)
//
// Creating a poll whose name is taken resolves to the existing record, and a
// second vote by the same key resolves to the existing receipt. Uniqueness and
// vote deduplication fall out of the storage layer.
//
// # Signing
//
//	tx := &types.Transaction{Program: program, Signer: pub, Nonce: 1, Data: data}
//	tx.Signature = types.MustNewSignature(ed25519.Sign(priv, tx.SignBytes("chain")))
//	err := tx.Verify("chain")
package types
