package tables

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strconv"
	"time"

	"github.com/chainid/console/internal/collection"
	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/docker"
	"github.com/chainid/console/internal/models"
	"github.com/chainid/console/internal/stack"
)

// Sources are the backends table rows are loaded from. Nil stores yield
// empty tables, or undecorated rows for Controls.
type Sources struct {
	Docker    docker.Client
	Compose   *compose.Cache
	StacksDir string
	Users     *models.UserStore
	Teams     *models.TeamStore
	Controls  *models.ResourceControlStore
}

func (s Sources) controls(resourceType string) (map[string]*models.ResourceControl, error) {
	if s.Controls == nil {
		return map[string]*models.ResourceControl{}, nil
	}
	return s.Controls.ByType(resourceType)
}

// stackControls returns the controls of stacks, inherited by resources that
// belong to a stack and have no control of their own.
func (s Sources) stackControls() (map[string]*models.ResourceControl, error) {
	return s.controls("stack")
}

func inherit(own, stacks map[string]*models.ResourceControl, id, stackName string) Access {
	if rc := own[id]; rc != nil {
		return newAccess(rc)
	}
	if stackName != "" {
		if rc := stacks[stackName]; rc != nil {
			return newAccess(rc)
		}
	}
	return newAccess(nil)
}

// definition is a table with its row type erased.
type definition interface {
	load(ctx context.Context, src Sources) (any, error)
	newView(pageSize int) view
}

type tableDef[T any] struct {
	schema  collection.Schema[T]
	loader  func(ctx context.Context, src Sources) ([]T, error)
	visible func(row T, v Viewer) bool
}

func (d *tableDef[T]) load(ctx context.Context, src Sources) (any, error) {
	rows, err := d.loader(ctx, src)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

func (d *tableDef[T]) newView(pageSize int) view {
	schema := d.schema
	if pageSize != 0 {
		schema.DefaultPageSize = pageSize
	}
	return &typedView[T]{
		v:       collection.New(schema),
		visible: d.visible,
	}
}

var definitions = map[Name]definition{
	Containers: &tableDef[ContainerRow]{
		schema:  containerSchema,
		loader:  loadContainers,
		visible: ContainerRow.visibleTo,
	},
	Images: &tableDef[ImageRow]{
		schema:  imageSchema,
		loader:  loadImages,
		visible: ImageRow.visibleTo,
	},
	Networks: &tableDef[NetworkRow]{
		schema:  networkSchema,
		loader:  loadNetworks,
		visible: NetworkRow.visibleTo,
	},
	Volumes: &tableDef[VolumeRow]{
		schema:  volumeSchema,
		loader:  loadVolumes,
		visible: VolumeRow.visibleTo,
	},
	Configs: &tableDef[ConfigRow]{
		schema:  configSchema,
		loader:  loadConfigs,
		visible: ConfigRow.visibleTo,
	},
	Stacks: &tableDef[StackRow]{
		schema:  stackSchema,
		loader:  loadStacks,
		visible: StackRow.visibleTo,
	},
	Users: &tableDef[UserRow]{
		schema:  userSchema,
		loader:  loadUsers,
		visible: UserRow.visibleTo,
	},
	Teams: &tableDef[TeamRow]{
		schema:  teamSchema,
		loader:  loadTeams,
		visible: TeamRow.visibleTo,
	},
}

// compareIP orders addresses numerically. Empty and invalid addresses sort
// first, among themselves by text.
func compareIP(a, b string) int {
	ia, errA := netip.ParseAddr(a)
	ib, errB := netip.ParseAddr(b)
	switch {
	case errA != nil && errB != nil:
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return ia.Compare(ib)
}

func formatPorts(ports []docker.ContainerPort) []string {
	out := make([]string, 0, len(ports))
	for _, p := range ports {
		if p.HostPort != 0 {
			out = append(out, fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, p.Protocol))
		} else {
			out = append(out, fmt.Sprintf("%d/%s", p.ContainerPort, p.Protocol))
		}
	}
	return out
}

// Containers

var containerSchema = collection.Schema[ContainerRow]{
	Key: func(r ContainerRow) string { return r.ID },
	Sortable: []collection.SortField[ContainerRow]{
		collection.Folded("name", func(r ContainerRow) string { return r.Name }),
		collection.Ordered("state", func(r ContainerRow) string { return r.State }),
		collection.Ordered("health", func(r ContainerRow) string { return r.Health }),
		collection.Folded("image", func(r ContainerRow) string { return r.Image }),
		collection.Folded("stack", func(r ContainerRow) string { return r.StackName }),
		collection.Func("ipAddress", func(a, b ContainerRow) int { return compareIP(a.IPAddress, b.IPAddress) }),
		collection.Time("created", func(r ContainerRow) time.Time { return r.Created }),
		collection.Ordered("ownership", func(r ContainerRow) string { return r.Ownership }),
	},
	Filterable: []collection.TextField[ContainerRow]{
		collection.Text(func(r ContainerRow) string { return r.Name }),
		collection.Text(func(r ContainerRow) string { return r.Image }),
		collection.Text(func(r ContainerRow) string { return r.State }),
		collection.Text(func(r ContainerRow) string { return r.Status }),
		collection.Text(func(r ContainerRow) string { return r.StackName }),
		collection.Text(func(r ContainerRow) string { return r.Service }),
		collection.Text(func(r ContainerRow) string { return r.IPAddress }),
		collection.Texts(func(r ContainerRow) []string { return formatPorts(r.Ports) }),
		collection.Text(func(r ContainerRow) string { return r.Ownership }),
	},
	DefaultSort: "name",
}

func loadContainers(ctx context.Context, src Sources) ([]ContainerRow, error) {
	containers, err := src.Docker.ContainerList(ctx)
	if err != nil {
		return nil, err
	}
	own, err := src.controls("container")
	if err != nil {
		return nil, err
	}
	stacks, err := src.stackControls()
	if err != nil {
		return nil, err
	}
	rows := make([]ContainerRow, 0, len(containers))
	for _, c := range containers {
		rows = append(rows, ContainerRow{Container: c, Access: inherit(own, stacks, c.ID, c.StackName)})
	}
	return rows, nil
}

// Images

var imageSchema = collection.Schema[ImageRow]{
	Key: func(r ImageRow) string { return r.ID },
	Sortable: []collection.SortField[ImageRow]{
		collection.Folded("tags", ImageRow.Tag),
		collection.Ordered("id", func(r ImageRow) string { return r.ID }),
		collection.Ordered("size", func(r ImageRow) int64 { return r.Size }),
		collection.Time("created", func(r ImageRow) time.Time { return r.Created }),
		collection.Bool("dangling", func(r ImageRow) bool { return r.Dangling }),
		collection.Ordered("ownership", func(r ImageRow) string { return r.Ownership }),
	},
	Filterable: []collection.TextField[ImageRow]{
		collection.Text(func(r ImageRow) string { return r.ID }),
		collection.Texts(func(r ImageRow) []string { return r.RepoTags }),
		collection.Text(func(r ImageRow) string { return r.Ownership }),
	},
	DefaultSort: "tags",
}

func loadImages(ctx context.Context, src Sources) ([]ImageRow, error) {
	images, err := src.Docker.ImageList(ctx)
	if err != nil {
		return nil, err
	}
	own, err := src.controls("image")
	if err != nil {
		return nil, err
	}
	rows := make([]ImageRow, 0, len(images))
	for _, img := range images {
		rows = append(rows, ImageRow{Image: img, Access: newAccess(own[img.ID])})
	}
	return rows, nil
}

// Networks

var networkSchema = collection.Schema[NetworkRow]{
	Key: func(r NetworkRow) string { return r.ID },
	Sortable: []collection.SortField[NetworkRow]{
		collection.Folded("name", func(r NetworkRow) string { return r.Name }),
		collection.Folded("stack", func(r NetworkRow) string { return r.StackName }),
		collection.Ordered("driver", func(r NetworkRow) string { return r.Driver }),
		collection.Ordered("scope", func(r NetworkRow) string { return r.Scope }),
		collection.Ordered("subnet", func(r NetworkRow) string { return r.Subnet }),
		collection.Func("gateway", func(a, b NetworkRow) int { return compareIP(a.Gateway, b.Gateway) }),
		collection.Bool("internal", func(r NetworkRow) bool { return r.Internal }),
		collection.Time("created", func(r NetworkRow) time.Time { return r.Created }),
		collection.Ordered("ownership", func(r NetworkRow) string { return r.Ownership }),
	},
	Filterable: []collection.TextField[NetworkRow]{
		collection.Text(func(r NetworkRow) string { return r.Name }),
		collection.Text(func(r NetworkRow) string { return r.StackName }),
		collection.Text(func(r NetworkRow) string { return r.Driver }),
		collection.Text(func(r NetworkRow) string { return r.Scope }),
		collection.Text(func(r NetworkRow) string { return r.Subnet }),
		collection.Text(func(r NetworkRow) string { return r.Gateway }),
		collection.Text(func(r NetworkRow) string { return r.Ownership }),
	},
	DefaultSort: "name",
}

func loadNetworks(ctx context.Context, src Sources) ([]NetworkRow, error) {
	networks, err := src.Docker.NetworkList(ctx)
	if err != nil {
		return nil, err
	}
	own, err := src.controls("network")
	if err != nil {
		return nil, err
	}
	stacks, err := src.stackControls()
	if err != nil {
		return nil, err
	}
	rows := make([]NetworkRow, 0, len(networks))
	for _, n := range networks {
		rows = append(rows, NetworkRow{Network: n, Access: inherit(own, stacks, n.ID, n.StackName)})
	}
	return rows, nil
}

// Volumes

var volumeSchema = collection.Schema[VolumeRow]{
	Key: func(r VolumeRow) string { return r.Name },
	Sortable: []collection.SortField[VolumeRow]{
		collection.Folded("name", func(r VolumeRow) string { return r.Name }),
		collection.Folded("stack", func(r VolumeRow) string { return r.StackName }),
		collection.Ordered("driver", func(r VolumeRow) string { return r.Driver }),
		collection.Ordered("mountpoint", func(r VolumeRow) string { return r.Mountpoint }),
		collection.Time("created", func(r VolumeRow) time.Time { return r.Created }),
		collection.Ordered("ownership", func(r VolumeRow) string { return r.Ownership }),
	},
	Filterable: []collection.TextField[VolumeRow]{
		collection.Text(func(r VolumeRow) string { return r.Name }),
		collection.Text(func(r VolumeRow) string { return r.StackName }),
		collection.Text(func(r VolumeRow) string { return r.Driver }),
		collection.Text(func(r VolumeRow) string { return r.Mountpoint }),
		collection.Text(func(r VolumeRow) string { return r.Ownership }),
	},
	DefaultSort: "name",
}

func loadVolumes(ctx context.Context, src Sources) ([]VolumeRow, error) {
	volumes, err := src.Docker.VolumeList(ctx)
	if err != nil {
		return nil, err
	}
	own, err := src.controls("volume")
	if err != nil {
		return nil, err
	}
	stacks, err := src.stackControls()
	if err != nil {
		return nil, err
	}
	rows := make([]VolumeRow, 0, len(volumes))
	for _, v := range volumes {
		rows = append(rows, VolumeRow{Volume: v, Access: inherit(own, stacks, v.Name, v.StackName)})
	}
	return rows, nil
}

// Configs

var configSchema = collection.Schema[ConfigRow]{
	Key: func(r ConfigRow) string { return r.ID },
	Sortable: []collection.SortField[ConfigRow]{
		collection.Folded("name", func(r ConfigRow) string { return r.Name }),
		collection.Time("created", func(r ConfigRow) time.Time { return r.Created }),
		collection.Time("updated", func(r ConfigRow) time.Time { return r.Updated }),
		collection.Ordered("size", func(r ConfigRow) int { return r.Size }),
		collection.Ordered("ownership", func(r ConfigRow) string { return r.Ownership }),
	},
	Filterable: []collection.TextField[ConfigRow]{
		collection.Text(func(r ConfigRow) string { return r.Name }),
		collection.Text(func(r ConfigRow) string { return r.ID }),
		collection.Text(func(r ConfigRow) string { return r.Ownership }),
	},
	DefaultSort: "name",
}

func loadConfigs(ctx context.Context, src Sources) ([]ConfigRow, error) {
	configs, err := src.Docker.ConfigList(ctx)
	if err != nil {
		return nil, err
	}
	own, err := src.controls("config")
	if err != nil {
		return nil, err
	}
	rows := make([]ConfigRow, 0, len(configs))
	for _, c := range configs {
		rows = append(rows, ConfigRow{
			ID:      c.ID,
			Name:    c.Name,
			Created: c.Created,
			Updated: c.Updated,
			Version: c.Version,
			Size:    len(c.Data),
			Labels:  c.Labels,
			Access:  newAccess(own[c.ID]),
		})
	}
	return rows, nil
}

// Stacks

var stackSchema = collection.Schema[StackRow]{
	Key: func(r StackRow) string { return r.Name },
	Sortable: []collection.SortField[StackRow]{
		collection.Folded("name", func(r StackRow) string { return r.Name }),
		collection.Ordered("status", func(r StackRow) string { return string(r.Status) }),
		collection.Bool("managed", func(r StackRow) bool { return r.Managed }),
		collection.Ordered("containers", func(r StackRow) int { return r.Containers }),
		collection.Ordered("ownership", func(r StackRow) string { return r.Ownership }),
	},
	Filterable: []collection.TextField[StackRow]{
		collection.Text(func(r StackRow) string { return r.Name }),
		collection.Text(func(r StackRow) string { return string(r.Status) }),
		collection.Texts(func(r StackRow) []string { return r.Images }),
		collection.Text(func(r StackRow) string { return r.Ownership }),
	},
	DefaultSort: "name",
}

func loadStacks(ctx context.Context, src Sources) ([]StackRow, error) {
	containers, err := src.Docker.ContainerList(ctx)
	if err != nil {
		return nil, err
	}
	cache := src.Compose
	if cache == nil {
		cache = compose.NewCache()
	}
	own, err := src.stackControls()
	if err != nil {
		return nil, err
	}
	stacks := stack.List(src.StacksDir, cache, containers)
	rows := make([]StackRow, 0, len(stacks))
	for _, s := range stacks {
		rows = append(rows, StackRow{Stack: s, Access: newAccess(own[s.Name])})
	}
	return rows, nil
}

// Users

var userSchema = collection.Schema[UserRow]{
	Key: UserRow.key,
	Sortable: []collection.SortField[UserRow]{
		collection.Folded("username", func(r UserRow) string { return r.Username }),
		collection.Ordered("role", func(r UserRow) string { return r.Role }),
		collection.Bool("active", func(r UserRow) bool { return r.Active }),
		collection.Ordered("id", func(r UserRow) int { return r.ID }),
	},
	Filterable: []collection.TextField[UserRow]{
		collection.Text(func(r UserRow) string { return r.Username }),
		collection.Text(func(r UserRow) string { return r.Role }),
		collection.Text(func(r UserRow) string { return strconv.Itoa(r.ID) }),
	},
	DefaultSort: "username",
}

func loadUsers(_ context.Context, src Sources) ([]UserRow, error) {
	if src.Users == nil {
		return []UserRow{}, nil
	}
	users, err := src.Users.List()
	if err != nil {
		return nil, err
	}
	rows := make([]UserRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, UserRow{
			ID:       u.ID,
			Username: u.Username,
			Role:     u.Role.String(),
			Admin:    u.IsAdmin(),
			Active:   u.Active,
		})
	}
	return rows, nil
}

// visibleTo hides administrators from standard users.
func (r UserRow) visibleTo(v Viewer) bool {
	return v.Admin || !r.Admin
}

// Teams

var teamSchema = collection.Schema[TeamRow]{
	Key: TeamRow.key,
	Sortable: []collection.SortField[TeamRow]{
		collection.Folded("name", func(r TeamRow) string { return r.Name }),
		collection.Ordered("members", func(r TeamRow) int { return r.Members }),
		collection.Ordered("id", func(r TeamRow) int { return r.ID }),
	},
	Filterable: []collection.TextField[TeamRow]{
		collection.Text(func(r TeamRow) string { return r.Name }),
	},
	DefaultSort: "name",
}

func loadTeams(_ context.Context, src Sources) ([]TeamRow, error) {
	if src.Teams == nil {
		return []TeamRow{}, nil
	}
	teams, err := src.Teams.List()
	if err != nil {
		return nil, err
	}
	rows := make([]TeamRow, 0, len(teams))
	for _, t := range teams {
		leaders := []int{}
		for id, role := range t.Members {
			if role == models.TeamLeader {
				leaders = append(leaders, id)
			}
		}
		slices.Sort(leaders)
		rows = append(rows, TeamRow{ID: t.ID, Name: t.Name, Members: len(t.Members), Leaders: leaders})
	}
	return rows, nil
}

// visibleTo shows standard users only the teams they belong to.
func (r TeamRow) visibleTo(v Viewer) bool {
	return v.Admin || slices.Contains(v.Teams, r.ID)
}
