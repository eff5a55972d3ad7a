package models

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/chainid/console/internal/db"
)

// openTestDB creates a temp BoltDB for testing.
func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// --- UserStore ---

func TestUserStoreCreateAndFind(t *testing.T) {
	t.Parallel()
	store := NewUserStore(openTestDB(t))

	user, err := store.Create("alice", "password123", RoleAdministrator)
	if err != nil {
		t.Fatal(err)
	}
	if user.Username != "alice" || user.ID == 0 || !user.IsAdmin() {
		t.Fatalf("created user = %+v", user)
	}
	if !VerifyPassword("password123", user.Password) {
		t.Error("stored hash should verify the password")
	}
	if VerifyPassword("wrong", user.Password) {
		t.Error("wrong password should not verify")
	}

	found, err := store.FindByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.Username != "alice" {
		t.Fatalf("FindByUsername = %+v", found)
	}

	foundByID, err := store.FindByID(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if foundByID == nil || foundByID.Username != "alice" {
		t.Fatalf("FindByID = %+v", foundByID)
	}

	notFound, err := store.FindByUsername("bob")
	if err != nil {
		t.Fatal(err)
	}
	if notFound != nil {
		t.Error("expected nil for nonexistent user")
	}

	if _, err := store.Create("alice", "again", RoleStandard); err == nil {
		t.Error("expected duplicate username to fail")
	}
}

func TestUserStoreListAndCount(t *testing.T) {
	t.Parallel()
	store := NewUserStore(openTestDB(t))

	count, err := store.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("initial count = %d, want 0", count)
	}

	for _, name := range []string{"zed", "amy", "kim"} {
		if _, err := store.Create(name, "pass", RoleStandard); err != nil {
			t.Fatal(err)
		}
	}

	count, err = store.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}

	users, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 3 {
		t.Fatalf("List returned %d users", len(users))
	}
	// ID order, which is creation order
	for i, want := range []string{"zed", "amy", "kim"} {
		if users[i].Username != want || users[i].ID != i+1 {
			t.Errorf("users[%d] = %+v, want %s", i, users[i], want)
		}
	}
}

// --- SettingStore ---

func TestSettingStore(t *testing.T) {
	t.Parallel()
	database := openTestDB(t)
	store := NewSettingStore(database)

	got, err := store.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if got.LogoURL != "" || got.DefaultPageSize != nil || got.PageSize(25) != 25 {
		t.Fatalf("initial settings = %+v", got)
	}

	size := 0
	if err := store.Update(Settings{LogoURL: "https://example.com/logo.png", DefaultPageSize: &size}); err != nil {
		t.Fatal(err)
	}
	got, _ = store.Settings()
	if got.LogoURL != "https://example.com/logo.png" || got.PageSize(25) != 0 {
		t.Errorf("after update = %+v", got)
	}

	negative := -1
	if err := store.Update(Settings{DefaultPageSize: &negative}); err == nil {
		t.Error("expected negative page size to be rejected")
	}
	if got, _ = store.Settings(); got.PageSize(25) != 0 {
		t.Errorf("rejected update changed settings to %+v", got)
	}

	// A second store over the same database reads the persisted record.
	reopened, err := NewSettingStore(database).Settings()
	if err != nil {
		t.Fatal(err)
	}
	if reopened.LogoURL != got.LogoURL || reopened.PageSize(25) != 0 {
		t.Errorf("reopened settings = %+v", reopened)
	}
}

func TestEnsureJWTSecret(t *testing.T) {
	t.Parallel()
	store := NewSettingStore(openTestDB(t))

	first, err := store.EnsureJWTSecret()
	if err != nil {
		t.Fatal(err)
	}
	if first == "" {
		t.Fatal("expected a generated secret")
	}

	second, err := store.EnsureJWTSecret()
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("secret should be generated once")
	}

	// The secret lives beside the settings record, not inside it.
	if err := store.Update(Settings{LogoURL: "x"}); err != nil {
		t.Fatal(err)
	}
	if third, _ := store.EnsureJWTSecret(); third != first {
		t.Error("updating settings replaced the secret")
	}
}

// --- TablePrefStore ---

func TestTablePrefStore(t *testing.T) {
	t.Parallel()
	store := NewTablePrefStore(openTestDB(t))

	p, err := store.Get(1, "containers")
	if err != nil {
		t.Fatal(err)
	}
	if p != nil {
		t.Fatalf("expected nil pref, got %+v", p)
	}

	if err := store.Save(1, "containers", TablePref{SortKey: "state", SortDescending: true, PageSize: 50}); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(2, "containers", TablePref{SortKey: "name", PageSize: 0}); err != nil {
		t.Fatal(err)
	}

	p, err = store.Get(1, "containers")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.SortKey != "state" || !p.SortDescending || p.PageSize != 50 {
		t.Fatalf("pref = %+v", p)
	}
	if p.Updated.IsZero() {
		t.Error("Save should stamp Updated")
	}

	// Other users and tables are independent
	p, _ = store.Get(2, "containers")
	if p == nil || p.SortKey != "name" || p.PageSize != 0 {
		t.Fatalf("user 2 pref = %+v", p)
	}
	if p, _ = store.Get(1, "images"); p != nil {
		t.Errorf("images pref = %+v, want nil", p)
	}
}

// --- ResourceControlStore ---

func TestResourceControlStore(t *testing.T) {
	t.Parallel()
	store := NewResourceControlStore(openTestDB(t))

	if err := store.Set(ResourceControl{ResourceType: "volume", ResourceID: "data", Public: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ResourceControl{ResourceType: "volume", ResourceID: "logs", Users: []int{2}}); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ResourceControl{ResourceType: "network", ResourceID: "data", AdministratorsOnly: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ResourceControl{ResourceType: "volume"}); err == nil {
		t.Error("expected error for missing id")
	}
	if err := store.Set(ResourceControl{ResourceType: "volume", ResourceID: "logs"}); err == nil {
		t.Error("expected error for a control granting nobody")
	}

	vols, err := store.ByType("volume")
	if err != nil {
		t.Fatal(err)
	}
	if len(vols) != 2 || !vols["data"].Public || vols["logs"].Users[0] != 2 {
		t.Fatalf("volume controls = %+v", vols)
	}

	if err := store.Delete("volume", "data"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("volume", "never-existed"); err != nil {
		t.Fatal(err)
	}
	vols, _ = store.ByType("volume")
	if _, ok := vols["data"]; ok || len(vols) != 1 {
		t.Errorf("after delete = %+v", vols)
	}

	nets, _ := store.ByType("network")
	if len(nets) != 1 || !nets["data"].AdministratorsOnly {
		t.Errorf("network controls = %+v", nets)
	}
}

func TestResourceControlAccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rc        *ResourceControl
		ownership string
		admin     bool
		user      bool // access for user 7
		other     bool // access for user 8, member of team 3
	}{
		{"no control", nil, OwnershipAdministrators, true, false, false},
		{"administrators", &ResourceControl{AdministratorsOnly: true}, OwnershipAdministrators, true, false, false},
		{"public", &ResourceControl{Public: true}, OwnershipPublic, true, true, true},
		{"private", &ResourceControl{Users: []int{7}}, OwnershipPrivate, true, true, false},
		{"restricted", &ResourceControl{Users: []int{7, 9}}, OwnershipRestricted, true, true, false},
		{"team", &ResourceControl{Teams: []int{3}}, OwnershipRestricted, true, false, true},
		{"user and team", &ResourceControl{Users: []int{7}, Teams: []int{3}}, OwnershipRestricted, true, true, true},
		{"other team", &ResourceControl{Teams: []int{4}}, OwnershipRestricted, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.rc.Ownership(); got != tt.ownership {
				t.Errorf("Ownership() = %q, want %q", got, tt.ownership)
			}
			if got := tt.rc.CanAccess(1, true, nil); got != tt.admin {
				t.Errorf("admin access = %v", got)
			}
			if got := tt.rc.CanAccess(7, false, nil); got != tt.user {
				t.Errorf("user 7 access = %v", got)
			}
			if got := tt.rc.CanAccess(8, false, []int{3}); got != tt.other {
				t.Errorf("user 8 access = %v", got)
			}
		})
	}
}

func TestResourceControlValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rc   ResourceControl
		ok   bool
	}{
		{"empty", ResourceControl{}, false},
		{"public", ResourceControl{Public: true}, true},
		{"administrators", ResourceControl{AdministratorsOnly: true}, true},
		{"public and administrators", ResourceControl{Public: true, AdministratorsOnly: true}, false},
		{"users", ResourceControl{Users: []int{2}}, true},
		{"teams", ResourceControl{Teams: []int{1}}, true},
		{"empty lists", ResourceControl{Users: []int{}, Teams: []int{}}, false},
	}
	for _, tt := range tests {
		err := tt.rc.Validate()
		if (err == nil) != tt.ok {
			t.Errorf("%s: Validate() = %v, want ok=%v", tt.name, err, tt.ok)
		}
	}
}

// --- TeamStore ---

func TestTeamStore(t *testing.T) {
	t.Parallel()
	store := NewTeamStore(openTestDB(t))

	ops, err := store.Create("ops")
	if err != nil {
		t.Fatal(err)
	}
	dev, err := store.Create(" dev ")
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name != "dev" || dev.ID == ops.ID {
		t.Fatalf("created team = %+v", dev)
	}
	if _, err := store.Create("OPS"); err == nil {
		t.Error("expected duplicate team name to fail")
	}
	if _, err := store.Create("  "); err == nil {
		t.Error("expected blank team name to fail")
	}

	if err := store.SetMembership(ops.ID, 7, TeamLeader); err != nil {
		t.Fatal(err)
	}
	if err := store.SetMembership(dev.ID, 7, TeamMember); err != nil {
		t.Fatal(err)
	}
	if err := store.SetMembership(dev.ID, 8, TeamMember); err != nil {
		t.Fatal(err)
	}
	if err := store.SetMembership(dev.ID, 8, TeamRole(5)); err == nil {
		t.Error("expected invalid role to fail")
	}
	if err := store.SetMembership(99, 8, TeamMember); !errors.Is(err, ErrTeamNotFound) {
		t.Errorf("membership on missing team = %v", err)
	}

	ids, err := store.TeamsOf(7)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(ids, []int{ops.ID, dev.ID}) {
		t.Errorf("TeamsOf(7) = %v", ids)
	}
	got, _ := store.Get(ops.ID)
	if got.Members[7] != TeamLeader || got.Members[7].String() != "leader" {
		t.Errorf("ops members = %v", got.Members)
	}

	if err := store.RemoveMembership(dev.ID, 7); err != nil {
		t.Fatal(err)
	}
	if err := store.RemoveMembership(dev.ID, 7); err != nil {
		t.Errorf("removing a non-member: %v", err)
	}
	if ids, _ = store.TeamsOf(7); !slices.Equal(ids, []int{ops.ID}) {
		t.Errorf("TeamsOf(7) after removal = %v", ids)
	}

	if err := store.Delete(dev.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(dev.ID); !errors.Is(err, ErrTeamNotFound) {
		t.Errorf("second delete = %v", err)
	}
	if ids, _ = store.TeamsOf(8); len(ids) != 0 {
		t.Errorf("TeamsOf(8) after team delete = %v", ids)
	}
	teams, _ := store.List()
	if len(teams) != 1 || teams[0].Name != "ops" {
		t.Errorf("List() = %+v", teams)
	}
}
