package watcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crossbill-org/crossbill/keyvaluedb"
	"github.com/crossbill-org/crossbill/util"
)

/*
Record is one verified submission: the commitment the base ledger stored
and the replica state the watcher reproduced for it. BaseBlock is the base
ledger block carrying the accepted submission, VerifiedAt is unix seconds.
*/
type Record struct {
	_           struct{}       `cbor:",toarray"`
	BlockNumber uint64         `json:"block_number"`
	StateRoot   []byte         `json:"state_root,omitempty"`
	TxDigest    []byte         `json:"tx_digest,omitempty"`
	Submitter   common.Address `json:"submitter"`
	BaseBlock   uint64         `json:"base_block"`
	VerifiedAt  int64          `json:"verified_at"`
}

// Journal persists the watcher's verification trail keyed by commitment
// number, so an audit survives the process.
type Journal struct {
	mu sync.Mutex
	db keyvaluedb.KeyValueDB
}

func NewJournal(db keyvaluedb.KeyValueDB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal database is nil")
	}
	return &Journal{db: db}, nil
}

// Append stores the record. A zero VerifiedAt is stamped with the current
// time.
func (j *Journal) Append(r Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if r.VerifiedAt == 0 {
		r.VerifiedAt = time.Now().Unix()
	}
	if err := j.db.Write(util.Uint64ToBytes(r.BlockNumber), r); err != nil {
		return fmt.Errorf("writing journal record %d: %w", r.BlockNumber, err)
	}
	return nil
}

// Records returns the verification trail in commitment order.
func (j *Journal) Records() (records []Record, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	it := j.db.First()
	defer func() { err = errors.Join(err, it.Close()) }()
	for ; it.Valid(); it.Next() {
		var r Record
		if err := it.Value(&r); err != nil {
			return nil, fmt.Errorf("reading journal record %d: %w", util.BytesToUint64(it.Key()), err)
		}
		records = append(records, r)
	}
	return records, nil
}

// Last returns the newest record, nil when the journal is empty.
func (j *Journal) Last() (_ *Record, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	it := j.db.Last()
	defer func() { err = errors.Join(err, it.Close()) }()
	if !it.Valid() {
		return nil, nil
	}
	var r Record
	if err := it.Value(&r); err != nil {
		return nil, fmt.Errorf("reading journal record %d: %w", util.BytesToUint64(it.Key()), err)
	}
	return &r, nil
}
