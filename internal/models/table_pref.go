package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/chainid/console/internal/db"
)

// TablePref is the remembered presentation of one table for one user.
type TablePref struct {
	SortKey        string    `json:"sortKey"`
	SortDescending bool      `json:"sortDescending"`
	PageSize       int       `json:"pageSize"`
	Updated        time.Time `json:"updated"`
}

// TablePrefStore persists per-user table preferences so a table reopens with
// the page size and ordering the user last chose.
type TablePrefStore struct {
	db *bolt.DB
}

func NewTablePrefStore(database *bolt.DB) *TablePrefStore {
	return &TablePrefStore{db: database}
}

func tablePrefKey(userID int, table string) []byte {
	return []byte(strconv.Itoa(userID) + "/" + table)
}

// Get returns the stored preference or nil if the user never changed the table.
func (s *TablePrefStore) Get(userID int, table string) (*TablePref, error) {
	var p *TablePref
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(db.BucketTablePrefs).Get(tablePrefKey(userID, table))
		if v == nil {
			return nil
		}
		p = &TablePref{}
		return json.Unmarshal(v, p)
	})
	if err != nil {
		return nil, fmt.Errorf("get table pref %d/%s: %w", userID, table, err)
	}
	return p, nil
}

// Save upserts the preference.
func (s *TablePrefStore) Save(userID int, table string, p TablePref) error {
	if p.Updated.IsZero() {
		p.Updated = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal table pref: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketTablePrefs).Put(tablePrefKey(userID, table), data)
	})
	if err != nil {
		return fmt.Errorf("save table pref %d/%s: %w", userID, table, err)
	}
	return nil
}
