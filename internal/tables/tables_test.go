package tables

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/db"
	"github.com/chainid/console/internal/docker"
	"github.com/chainid/console/internal/models"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

// frames records every frame a session delivers.
type frames struct {
	mu  sync.Mutex
	got []Frame
}

func (f *frames) add(fr Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, fr)
}

func (f *frames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func (f *frames) last() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.got[len(f.got)-1]
}

func containerNames(t *testing.T, fr Frame) []string {
	t.Helper()
	rows, ok := fr.Rows.([]ContainerRow)
	require.True(t, ok, "rows are %T", fr.Rows)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	return names
}

func TestParseName(t *testing.T) {
	t.Parallel()

	for _, n := range All {
		got, err := ParseName(string(n))
		require.NoError(t, err)
		require.Equal(t, n, got)
	}
	_, err := ParseName("secrets")
	require.Error(t, err)

	rt, ok := Volumes.ResourceType()
	require.True(t, ok)
	require.Equal(t, "volume", rt)
	_, ok = Users.ResourceType()
	require.False(t, ok)
	_, ok = Teams.ResourceType()
	require.False(t, ok)

	name, ok := TableForResourceType("stack")
	require.True(t, ok)
	require.Equal(t, Stacks, name)
}

func TestCompareIP(t *testing.T) {
	t.Parallel()

	require.Negative(t, compareIP("10.0.0.9", "10.0.0.10"))
	require.Positive(t, compareIP("172.18.0.2", "10.0.0.10"))
	require.Zero(t, compareIP("10.0.0.1", "10.0.0.1"))
	require.Negative(t, compareIP("", "10.0.0.1"))
	require.Positive(t, compareIP("10.0.0.1", "bogus"))
}

func TestContainerAccess(t *testing.T) {
	t.Parallel()

	client := docker.NewStaticClient()
	client.SetContainers([]docker.Container{
		{ID: "c1", Name: "public"},
		{ID: "c2", Name: "private"},
		{ID: "c3", Name: "unowned"},
		{ID: "c4", Name: "web-nginx-1", StackName: "web"},
	})
	controls := models.NewResourceControlStore(openTestDB(t))
	require.NoError(t, controls.Set(models.ResourceControl{ResourceType: "container", ResourceID: "c1", Public: true}))
	require.NoError(t, controls.Set(models.ResourceControl{ResourceType: "container", ResourceID: "c2", Users: []int{7}}))
	require.NoError(t, controls.Set(models.ResourceControl{ResourceType: "stack", ResourceID: "web", Public: true}))

	hub := NewHub(Sources{Docker: client, Controls: controls})
	ctx := context.Background()

	admin, err := hub.Open(ctx, Containers, Viewer{UserID: 1, Admin: true}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"private", "public", "unowned", "web-nginx-1"}, containerNames(t, admin.Frame()))

	owner, err := hub.Open(ctx, Containers, Viewer{UserID: 7}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"private", "public", "web-nginx-1"}, containerNames(t, owner.Frame()))

	other, err := hub.Open(ctx, Containers, Viewer{UserID: 8}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"public", "web-nginx-1"}, containerNames(t, other.Frame()))

	byName := map[string]string{}
	for _, r := range admin.Frame().Rows.([]ContainerRow) {
		byName[r.Name] = r.Ownership
	}
	require.Equal(t, map[string]string{
		"private":     models.OwnershipPrivate,
		"public":      models.OwnershipPublic,
		"unowned":     models.OwnershipAdministrators,
		"web-nginx-1": models.OwnershipPublic,
	}, byName)
}

func TestUsersTableHidesAdministrators(t *testing.T) {
	t.Parallel()

	users := models.NewUserStore(openTestDB(t))
	_, err := users.Create("root", "password123", models.RoleAdministrator)
	require.NoError(t, err)
	bob, err := users.Create("bob", "password123", models.RoleStandard)
	require.NoError(t, err)

	hub := NewHub(Sources{Users: users})
	ctx := context.Background()

	s, err := hub.Open(ctx, Users, Viewer{UserID: bob.ID}, 0, nil)
	require.NoError(t, err)
	rows := s.Frame().Rows.([]UserRow)
	require.Len(t, rows, 1)
	require.Equal(t, "bob", rows[0].Username)

	s, err = hub.Open(ctx, Users, Viewer{UserID: 1, Admin: true}, 0, nil)
	require.NoError(t, err)
	rows = s.Frame().Rows.([]UserRow)
	require.Len(t, rows, 2)
	require.Equal(t, "bob", rows[0].Username)
	require.Equal(t, "root", rows[1].Username)
	require.Equal(t, "administrator", rows[1].Role)
}

func TestTeamGrantsAccess(t *testing.T) {
	t.Parallel()

	database := openTestDB(t)
	teams := models.NewTeamStore(database)
	ops, err := teams.Create("ops")
	require.NoError(t, err)
	_, err = teams.Create("dev")
	require.NoError(t, err)
	require.NoError(t, teams.SetMembership(ops.ID, 7, models.TeamLeader))

	client := docker.NewStaticClient()
	client.SetContainers([]docker.Container{
		{ID: "c1", Name: "db"},
		{ID: "c2", Name: "web"},
	})
	controls := models.NewResourceControlStore(database)
	require.NoError(t, controls.Set(models.ResourceControl{ResourceType: "container", ResourceID: "c1", Teams: []int{ops.ID}}))

	hub := NewHub(Sources{Docker: client, Controls: controls, Teams: teams})
	ctx := context.Background()

	member, err := hub.Open(ctx, Containers, Viewer{UserID: 7, Teams: []int{ops.ID}}, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"db"}, containerNames(t, member.Frame()))

	got := &frames{}
	outsider, err := hub.Open(ctx, Containers, Viewer{UserID: 8}, 0, got.add)
	require.NoError(t, err)
	require.Empty(t, containerNames(t, outsider.Frame()))

	// Joining the team re-filters open sessions of that user only.
	hub.SetTeams(8, []int{ops.ID})
	require.Equal(t, 1, got.count())
	require.Equal(t, []string{"db"}, containerNames(t, got.last()))
	require.Equal(t, []int{ops.ID}, outsider.Viewer().Teams)

	hub.SetTeams(8, nil)
	require.Equal(t, 2, got.count())
	require.Empty(t, containerNames(t, got.last()))
	require.Equal(t, []string{"db"}, containerNames(t, member.Frame()))

	// Teams table: members see their own teams, administrators see all.
	s, err := hub.Open(ctx, Teams, Viewer{UserID: 7, Teams: []int{ops.ID}}, 0, nil)
	require.NoError(t, err)
	rows := s.Frame().Rows.([]TeamRow)
	require.Len(t, rows, 1)
	require.Equal(t, TeamRow{ID: ops.ID, Name: "ops", Members: 1, Leaders: []int{7}}, rows[0])

	s, err = hub.Open(ctx, Teams, Viewer{UserID: 9}, 0, nil)
	require.NoError(t, err)
	require.Empty(t, s.Frame().Rows.([]TeamRow))

	s, err = hub.Open(ctx, Teams, Viewer{UserID: 1, Admin: true}, 0, nil)
	require.NoError(t, err)
	rows = s.Frame().Rows.([]TeamRow)
	require.Len(t, rows, 2)
	require.Equal(t, "dev", rows[0].Name)
}

func TestImagesSortBySize(t *testing.T) {
	t.Parallel()

	client := docker.NewStaticClient()
	client.SetImages([]docker.Image{
		{ID: "sha256:a", RepoTags: []string{"big:1"}, Size: 900},
		{ID: "sha256:b", RepoTags: []string{"small:1"}, Size: 90},
		{ID: "sha256:c", Size: 1000, Dangling: true},
	})
	hub := NewHub(Sources{Docker: client})

	s, err := hub.Open(context.Background(), Images, Viewer{Admin: true}, 0, nil)
	require.NoError(t, err)
	s.Sort("size")

	rows := s.Frame().Rows.([]ImageRow)
	require.Equal(t, []string{"small:1", "big:1", "<none>"}, []string{rows[0].Tag(), rows[1].Tag(), rows[2].Tag()})
}

func TestStacksTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "blog"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blog", "compose.yaml"), []byte("services:\n  wp:\n    image: wordpress\n"), 0644))
	cache := compose.NewCache()
	cache.PopulateFromDisk(dir)

	client := docker.NewStaticClient()
	client.SetContainers([]docker.Container{
		{ID: "1", Name: "blog-wp-1", StackName: "blog", Service: "wp", State: "running"},
		{ID: "2", Name: "ext-app-1", StackName: "ext", Service: "app", State: "exited"},
	})
	hub := NewHub(Sources{Docker: client, Compose: cache, StacksDir: dir})

	s, err := hub.Open(context.Background(), Stacks, Viewer{Admin: true}, 0, nil)
	require.NoError(t, err)
	rows := s.Frame().Rows.([]StackRow)
	require.Len(t, rows, 2)
	require.Equal(t, "blog", rows[0].Name)
	require.True(t, rows[0].Managed)
	require.Equal(t, "running", string(rows[0].Status))
	require.Equal(t, "ext", rows[1].Name)
	require.False(t, rows[1].Managed)

	s.Filter("wordpress")
	rows = s.Frame().Rows.([]StackRow)
	require.Len(t, rows, 1)
	require.Equal(t, "blog", rows[0].Name)
}

func TestConfigRowsOmitPayload(t *testing.T) {
	t.Parallel()

	client := docker.NewStaticClient()
	client.SetConfigs([]docker.Config{{ID: "cfg1", Name: "nginx.conf", Data: "server {}", Created: time.Unix(100, 0)}})
	hub := NewHub(Sources{Docker: client})

	s, err := hub.Open(context.Background(), Configs, Viewer{Admin: true}, 0, nil)
	require.NoError(t, err)
	rows := s.Frame().Rows.([]ConfigRow)
	require.Len(t, rows, 1)
	require.Equal(t, 9, rows[0].Size)
}
