package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	bolt "go.etcd.io/bbolt"

	"github.com/chainid/console/internal/db"
)

// Ownership levels shown in the ownership column of resource tables.
const (
	OwnershipPublic         = "public"
	OwnershipAdministrators = "administrators"
	OwnershipPrivate        = "private"
	OwnershipRestricted     = "restricted"
)

// ResourceControl records who may see a Docker resource.
type ResourceControl struct {
	ResourceType       string `json:"resourceType"` // container, image, network, volume, config, stack
	ResourceID         string `json:"resourceId"`
	Public             bool   `json:"public"`
	AdministratorsOnly bool   `json:"administratorsOnly"`
	Users              []int  `json:"users,omitempty"`
	Teams              []int  `json:"teams,omitempty"`
}

// ErrInvalidResourceControl is returned for a control that grants access to
// nobody or is both public and administrator-only.
var ErrInvalidResourceControl = errors.New("resource control must be public, administrator-only, or name users or teams")

// Validate checks that the control describes a reachable audience.
func (rc *ResourceControl) Validate() error {
	if rc.Public && rc.AdministratorsOnly {
		return ErrInvalidResourceControl
	}
	if !rc.Public && !rc.AdministratorsOnly && len(rc.Users) == 0 && len(rc.Teams) == 0 {
		return ErrInvalidResourceControl
	}
	return nil
}

// Ownership summarizes the control as one of the Ownership* levels.
func (rc *ResourceControl) Ownership() string {
	switch {
	case rc == nil, rc.AdministratorsOnly:
		return OwnershipAdministrators
	case rc.Public:
		return OwnershipPublic
	case len(rc.Users) == 1 && len(rc.Teams) == 0:
		return OwnershipPrivate
	default:
		return OwnershipRestricted
	}
}

// CanAccess reports whether the user, member of teams, may see the resource.
// Administrators see everything; resources without a control are
// administrator-only.
func (rc *ResourceControl) CanAccess(userID int, admin bool, teams []int) bool {
	if admin {
		return true
	}
	if rc == nil || rc.AdministratorsOnly {
		return false
	}
	if rc.Public || slices.Contains(rc.Users, userID) {
		return true
	}
	return slices.ContainsFunc(rc.Teams, func(id int) bool {
		return slices.Contains(teams, id)
	})
}

// ResourceControlStore persists resource controls keyed by type and id.
type ResourceControlStore struct {
	db *bolt.DB
}

func NewResourceControlStore(database *bolt.DB) *ResourceControlStore {
	return &ResourceControlStore{db: database}
}

func resourceControlKey(resourceType, resourceID string) []byte {
	return []byte(resourceType + "/" + resourceID)
}

// Set upserts a resource control.
func (s *ResourceControlStore) Set(rc ResourceControl) error {
	if rc.ResourceType == "" || rc.ResourceID == "" {
		return fmt.Errorf("resource control needs a type and an id")
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rc)
	if err != nil {
		return fmt.Errorf("marshal resource control: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketResourceControls).Put(resourceControlKey(rc.ResourceType, rc.ResourceID), data)
	})
	if err != nil {
		return fmt.Errorf("set resource control %s/%s: %w", rc.ResourceType, rc.ResourceID, err)
	}
	return nil
}

// Delete removes the control of a resource. Missing controls are not an error.
func (s *ResourceControlStore) Delete(resourceType, resourceID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketResourceControls).Delete(resourceControlKey(resourceType, resourceID))
	})
}

// ByType returns resource id → control for every control of resourceType.
func (s *ResourceControlStore) ByType(resourceType string) (map[string]*ResourceControl, error) {
	result := make(map[string]*ResourceControl)
	prefix := []byte(resourceType + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(db.BucketResourceControls).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			rc := &ResourceControl{}
			if err := json.Unmarshal(v, rc); err != nil {
				return fmt.Errorf("unmarshal resource control %q: %w", string(k), err)
			}
			result[rc.ResourceID] = rc
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resource controls %s: %w", resourceType, err)
	}
	return result, nil
}
