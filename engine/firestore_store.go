package engine

import (
	"context"
	"fmt"
	"math"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/pollberry/types"
)

// FirestoreStore keeps one document per account, keyed by the base58 address.
// Committed transaction hashes go to the "<collection>_txs" collection and the
// last committed slot to "<collection>_meta/ledger", written in the same
// transaction as the accounts.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	log        *logrus.Entry
}

// accountDoc is the stored document shape
type accountDoc struct {
	Owner   string `firestore:"owner"`
	Balance int64  `firestore:"balance"`
	Data    []byte `firestore:"data"`
}

type txDoc struct {
	Slot int64 `firestore:"slot"`
}

type metaDoc struct {
	Slot int64 `firestore:"slot"`
}

// NewFirestoreStore wraps an existing client
func NewFirestoreStore(client *firestore.Client, collection string, logger *logrus.Logger) *FirestoreStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
		log:        logger.WithFields(logrus.Fields{"module": "store", "collection": collection}),
	}
}

// NewFirestoreStoreFromConfig initializes a Firebase app and its Firestore
// client. Without a credentials file the application default credentials
// are used.
func NewFirestoreStoreFromConfig(ctx context.Context, cfg StoreConfig, logger *logrus.Logger) (*FirestoreStore, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect firestore: %w", err)
	}
	return NewFirestoreStore(client, cfg.Collection, logger), nil
}

func (s *FirestoreStore) doc(addr types.Address) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(addr.String())
}

// Get reads one account document
func (s *FirestoreStore) Get(ctx context.Context, addr types.Address) (*Account, error) {
	snap, err := s.doc(addr).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %w", addr, err)
	}

	var d accountDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode account %s: %w", addr, err)
	}
	return fromDoc(addr, &d)
}

func (s *FirestoreStore) txRef(hash types.Hash) *firestore.DocumentRef {
	return s.client.Collection(s.collection + "_txs").Doc(hash.String())
}

func (s *FirestoreStore) metaRef() *firestore.DocumentRef {
	return s.client.Collection(s.collection + "_meta").Doc("ledger")
}

// Commit writes every account, the transaction hash and the slot inside one
// Firestore transaction. The slot document only moves forward.
func (s *FirestoreStore) Commit(ctx context.Context, batch *Batch) error {
	if batch.Slot > math.MaxInt64 {
		return fmt.Errorf("%w: slot %d does not fit a document", ErrStoreCommit, batch.Slot)
	}
	docs := make([]*accountDoc, len(batch.Accounts))
	for i, acc := range batch.Accounts {
		d, err := toDoc(acc)
		if err != nil {
			return err
		}
		docs[i] = d
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		last, err := readLedgerSlot(tx.Get(s.metaRef()))
		if err != nil {
			return err
		}
		for i, acc := range batch.Accounts {
			if err := tx.Set(s.doc(acc.Address), docs[i]); err != nil {
				return err
			}
		}
		if !batch.TxHash.IsZero() {
			if err := tx.Set(s.txRef(batch.TxHash), &txDoc{Slot: int64(batch.Slot)}); err != nil {
				return err
			}
		}
		if batch.Slot > last {
			return tx.Set(s.metaRef(), &metaDoc{Slot: int64(batch.Slot)})
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"slot":     batch.Slot,
			"accounts": len(batch.Accounts),
		}).Error("commit failed")
		return fmt.Errorf("%w: %v", ErrStoreCommit, err)
	}
	return nil
}

// LastSlot reads the slot of the last committed batch
func (s *FirestoreStore) LastSlot(ctx context.Context) (uint64, error) {
	slot, err := readLedgerSlot(s.metaRef().Get(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to read ledger slot: %w", err)
	}
	return slot, nil
}

// readLedgerSlot decodes the ledger document; a missing document is slot 0
func readLedgerSlot(snap *firestore.DocumentSnapshot, err error) (uint64, error) {
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var d metaDoc
	if err := snap.DataTo(&d); err != nil {
		return 0, err
	}
	if d.Slot < 0 {
		return 0, fmt.Errorf("negative ledger slot %d", d.Slot)
	}
	return uint64(d.Slot), nil
}

// HasTx reports whether a transaction document exists for hash
func (s *FirestoreStore) HasTx(ctx context.Context, hash types.Hash) (bool, error) {
	_, err := s.txRef(hash).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up tx %s: %w", hash, err)
	}
	return true, nil
}

// Close closes the Firestore client
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func toDoc(acc *Account) (*accountDoc, error) {
	if acc.Balance > math.MaxInt64 {
		return nil, fmt.Errorf("%w: balance %d does not fit a document", ErrStoreCommit, acc.Balance)
	}
	return &accountDoc{
		Owner:   acc.Owner.String(),
		Balance: int64(acc.Balance),
		Data:    append([]byte(nil), acc.Data...),
	}, nil
}

func fromDoc(addr types.Address, d *accountDoc) (*Account, error) {
	owner, err := types.ParseAddress(d.Owner)
	if err != nil {
		return nil, fmt.Errorf("account %s has a bad owner: %w", addr, err)
	}
	if d.Balance < 0 {
		return nil, fmt.Errorf("account %s has a negative balance", addr)
	}
	return &Account{
		Address: addr,
		Owner:   owner,
		Balance: uint64(d.Balance),
		Data:    d.Data,
	}, nil
}

var _ AccountStore = (*FirestoreStore)(nil)
