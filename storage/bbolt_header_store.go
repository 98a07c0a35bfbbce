package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	bolt "go.etcd.io/bbolt"

	"lumen.dev/node/chain"
)

var (
	headersBucket = []byte("headers_by_height")
	headerMetaKey = []byte("tip")
)

// BoltHeaderStore is a bbolt-backed HeaderStore, one key per height
// holding that height's serialized header.
type BoltHeaderStore struct {
	db *bolt.DB
}

// OpenBoltHeaderStore opens (creating if necessary) a bbolt database at
// path for header storage.
func OpenBoltHeaderStore(path string) (*BoltHeaderStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open header db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(headersBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init header db: %w", err)
	}
	return &BoltHeaderStore{db: db}, nil
}

func heightKey(height int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(height))
	return b[:]
}

func (s *BoltHeaderStore) SaveHeader(height int32, hdr chain.Header) error {
	var buf bytes.Buffer
	if err := hdr.Serialize(&buf); err != nil {
		return fmt.Errorf("storage: serialize header at %d: %w", height, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(headersBucket)
		if err := b.Put(heightKey(height), buf.Bytes()); err != nil {
			return err
		}
		hash := chain.HeaderHash(&hdr)
		return b.Put(headerMetaKey, append(heightKey(height), hash[:]...))
	})
}

func (s *BoltHeaderStore) LoadHeaders(fromHeight int32) ([]chain.Header, error) {
	var out []chain.Header
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(headersBucket)
		c := b.Cursor()
		for k, v := c.Seek(heightKey(fromHeight)); k != nil; k, v = c.Next() {
			if bytes.Equal(k, headerMetaKey) {
				continue
			}
			var hdr chain.Header
			if err := hdr.Deserialize(bytes.NewReader(v)); err != nil {
				return fmt.Errorf("storage: decode header: %w", err)
			}
			out = append(out, hdr)
		}
		return nil
	})
	return out, err
}

func (s *BoltHeaderStore) Tip() (int32, chainhash.Hash, error) {
	var height int32
	var hash chainhash.Hash
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(headersBucket)
		v := b.Get(headerMetaKey)
		if v == nil {
			return fmt.Errorf("storage: no tip recorded")
		}
		height = int32(binary.BigEndian.Uint32(v[:4]))
		copy(hash[:], v[4:])
		return nil
	})
	return height, hash, err
}

func (s *BoltHeaderStore) Prune(aboveHeight int32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(headersBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.Seek(heightKey(aboveHeight + 1)); k != nil; k, _ = c.Next() {
			if bytes.Equal(k, headerMetaKey) {
				continue
			}
			cp := make([]byte, len(k))
			copy(cp, k)
			toDelete = append(toDelete, cp)
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		if v := b.Get(headerMetaKey); v == nil || int32(binary.BigEndian.Uint32(v[:4])) <= aboveHeight {
			return nil
		}
		v := b.Get(heightKey(aboveHeight))
		if v == nil {
			return b.Delete(headerMetaKey)
		}
		var hdr chain.Header
		if err := hdr.Deserialize(bytes.NewReader(v)); err != nil {
			return fmt.Errorf("storage: decode header: %w", err)
		}
		hash := chain.HeaderHash(&hdr)
		return b.Put(headerMetaKey, append(heightKey(aboveHeight), hash[:]...))
	})
}

func (s *BoltHeaderStore) Close() error {
	return s.db.Close()
}
