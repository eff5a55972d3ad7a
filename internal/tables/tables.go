// Package tables declares the console's tables on top of package collection
// and keeps their source rows in sync with the Docker daemon, the stacks
// directory and the user store.
package tables

import (
	"fmt"
	"strconv"
	"time"

	"github.com/chainid/console/internal/docker"
	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/stack"
)

// Name identifies a table.
type Name string

const (
	Containers Name = "containers"
	Images     Name = "images"
	Networks   Name = "networks"
	Volumes    Name = "volumes"
	Configs    Name = "configs"
	Stacks     Name = "stacks"
	Users      Name = "users"
	Teams      Name = "teams"
)

// All lists every table in display order.
var All = []Name{Containers, Images, Networks, Volumes, Configs, Stacks, Users, Teams}

// ParseName validates a table name coming from a client.
func ParseName(s string) (Name, error) {
	for _, n := range All {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown table %q", s)
}

// ResourceType returns the resource control type for a table. The users and
// teams tables have none.
func (n Name) ResourceType() (string, bool) {
	switch n {
	case Containers:
		return "container", true
	case Images:
		return "image", true
	case Networks:
		return "network", true
	case Volumes:
		return "volume", true
	case Configs:
		return "config", true
	case Stacks:
		return "stack", true
	}
	return "", false
}

// TableForResourceType is the inverse of Name.ResourceType.
func TableForResourceType(resourceType string) (Name, bool) {
	for _, n := range All {
		if rt, ok := n.ResourceType(); ok && rt == resourceType {
			return n, true
		}
	}
	return "", false
}

// Viewer is the user a session filters rows for.
type Viewer struct {
	UserID int
	Admin  bool
	Teams  []int // ids of the teams the user belongs to
}

// Access is the ownership decoration shared by every resource row.
type Access struct {
	Ownership       string                  `json:"ownership"`
	ResourceControl *models.ResourceControl `json:"resourceControl,omitempty"`
}

func newAccess(rc *models.ResourceControl) Access {
	return Access{Ownership: rc.Ownership(), ResourceControl: rc}
}

func (a Access) visibleTo(v Viewer) bool {
	return a.ResourceControl.CanAccess(v.UserID, v.Admin, v.Teams)
}

type ContainerRow struct {
	docker.Container
	Access
}

type ImageRow struct {
	docker.Image
	Access
}

// Tag is the first repository tag, or "<none>" for dangling images.
func (r ImageRow) Tag() string {
	if len(r.RepoTags) == 0 {
		return "<none>"
	}
	return r.RepoTags[0]
}

type NetworkRow struct {
	docker.Network
	Access
}

type VolumeRow struct {
	docker.Volume
	Access
}

// ConfigRow carries the payload size instead of the payload.
type ConfigRow struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Created time.Time         `json:"created"`
	Updated time.Time         `json:"updated"`
	Version uint64            `json:"version"`
	Size    int               `json:"size"`
	Labels  map[string]string `json:"labels"`
	Access
}

type StackRow struct {
	stack.Stack
	Access
}

// UserRow is a user without credentials.
type UserRow struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Admin    bool   `json:"admin"`
	Active   bool   `json:"active"`
}

func (r UserRow) key() string {
	return strconv.Itoa(r.ID)
}

type TeamRow struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Members int    `json:"members"`
	Leaders []int  `json:"leaders"`
}

func (r TeamRow) key() string {
	return strconv.Itoa(r.ID)
}
