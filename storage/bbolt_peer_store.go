package storage

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	addrsBucket = []byte("addrs")
	bansBucket  = []byte("bans")
)

// BoltPeerStore is a bbolt-backed PeerStore: a set of known addresses plus
// a map of banned addresses to their ban expiry.
type BoltPeerStore struct {
	db *bolt.DB
}

func OpenBoltPeerStore(path string) (*BoltPeerStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: open peer db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(addrsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bansBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: init peer db: %w", err)
	}
	return &BoltPeerStore{db: db}, nil
}

func (s *BoltPeerStore) SaveAddr(addr string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(addrsBucket).Put([]byte(addr), []byte{1})
	})
}

func (s *BoltPeerStore) LoadAddrs() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(addrsBucket).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

func (s *BoltPeerStore) MarkBanned(addr string, until time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(until.Unix()))
		return tx.Bucket(bansBucket).Put([]byte(addr), v[:])
	})
}

func (s *BoltPeerStore) IsBanned(addr string) (bool, time.Time, error) {
	var banned bool
	var until time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bansBucket).Get([]byte(addr))
		if v == nil {
			return nil
		}
		until = time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
		banned = time.Now().Before(until)
		return nil
	})
	return banned, until, err
}

func (s *BoltPeerStore) Close() error {
	return s.db.Close()
}
