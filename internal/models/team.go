package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/chainid/console/internal/db"
)

// TeamRole is a member's role inside a team.
type TeamRole int

const (
	TeamLeader TeamRole = 1
	TeamMember TeamRole = 2
)

func (r TeamRole) String() string {
	switch r {
	case TeamLeader:
		return "leader"
	case TeamMember:
		return "member"
	default:
		return "unknown"
	}
}

// Team groups users so resource controls can grant access to all of them.
type Team struct {
	ID      int              `json:"id"`
	Name    string           `json:"name"`
	Members map[int]TeamRole `json:"members,omitempty"`
}

// ErrTeamNotFound is returned when no team has the requested id.
var ErrTeamNotFound = errors.New("team not found")

type TeamStore struct {
	db *bolt.DB
}

func NewTeamStore(database *bolt.DB) *TeamStore {
	return &TeamStore{db: database}
}

// Create inserts a team. Names are unique, ignoring case.
func (s *TeamStore) Create(name string) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	var t *Team
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketTeams)
		err := b.ForEach(func(_, v []byte) error {
			var other Team
			if err := json.Unmarshal(v, &other); err != nil {
				return err
			}
			if strings.EqualFold(other.Name, name) {
				return fmt.Errorf("team %q already exists", name)
			}
			return nil
		})
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		t = &Team{ID: int(seq), Name: name}
		return putTeam(b, t)
	})
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	return t, nil
}

func putTeam(b *bolt.Bucket, t *Team) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal team: %w", err)
	}
	return b.Put(itob(uint64(t.ID)), data)
}

func getTeam(b *bolt.Bucket, id int) (*Team, error) {
	data := b.Get(itob(uint64(id)))
	if data == nil {
		return nil, ErrTeamNotFound
	}
	var t Team
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal team: %w", err)
	}
	return &t, nil
}

// Delete removes a team and with it every membership.
func (s *TeamStore) Delete(id int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketTeams)
		if b.Get(itob(uint64(id))) == nil {
			return ErrTeamNotFound
		}
		return b.Delete(itob(uint64(id)))
	})
}

// Get returns the team with the given id.
func (s *TeamStore) Get(id int) (*Team, error) {
	var t *Team
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = getTeam(tx.Bucket(db.BucketTeams), id)
		return err
	})
	return t, err
}

// List returns all teams in id order.
func (s *TeamStore) List() ([]Team, error) {
	var teams []Team
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketTeams).ForEach(func(_, v []byte) error {
			var t Team
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			teams = append(teams, t)
			return nil
		})
	})
	return teams, err
}

// SetMembership adds the user to the team or changes their role.
func (s *TeamStore) SetMembership(teamID, userID int, role TeamRole) error {
	if role != TeamLeader && role != TeamMember {
		return fmt.Errorf("invalid team role %d", role)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketTeams)
		t, err := getTeam(b, teamID)
		if err != nil {
			return err
		}
		if t.Members == nil {
			t.Members = map[int]TeamRole{}
		}
		t.Members[userID] = role
		return putTeam(b, t)
	})
}

// RemoveMembership removes the user from the team. Removing a non-member is
// not an error.
func (s *TeamStore) RemoveMembership(teamID, userID int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(db.BucketTeams)
		t, err := getTeam(b, teamID)
		if err != nil {
			return err
		}
		if _, ok := t.Members[userID]; !ok {
			return nil
		}
		delete(t.Members, userID)
		return putTeam(b, t)
	})
}

// TeamsOf returns the sorted ids of the teams the user belongs to.
func (s *TeamStore) TeamsOf(userID int) ([]int, error) {
	teams, err := s.List()
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, t := range teams {
		if _, ok := t.Members[userID]; ok {
			ids = append(ids, t.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}
