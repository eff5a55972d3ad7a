package stack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/docker"
)

func setupStacks(t *testing.T, files map[string]string) (string, *compose.Cache) {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.MkdirAll(filepath.Join(dir, name), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name, "compose.yaml"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	cache := compose.NewCache()
	cache.PopulateFromDisk(dir)
	return dir, cache
}

func byName(stacks []Stack) map[string]Stack {
	m := make(map[string]Stack, len(stacks))
	for _, s := range stacks {
		m[s.Name] = s
	}
	return m
}

func TestListStatuses(t *testing.T) {
	t.Parallel()

	dir, cache := setupStacks(t, map[string]string{
		"idle":  "services:\n  app:\n    image: app:1\n",
		"web":   "services:\n  nginx:\n    image: nginx\n  redis:\n    image: redis\n    labels:\n      chainid.status.ignore: \"true\"\n",
		"mixed": "services:\n  a:\n    image: a\n  b:\n    image: b\n",
		"sick":  "services:\n  db:\n    image: postgres\n",
		"fresh": "services:\n  x:\n    image: x\n",
		"down":  "services:\n  y:\n    image: y\n",
	})

	containers := []docker.Container{
		{Name: "web-nginx-1", StackName: "web", Service: "nginx", State: "running", Image: "nginx"},
		{Name: "web-redis-1", StackName: "web", Service: "redis", State: "exited", Image: "redis"},
		{Name: "mixed-a-1", StackName: "mixed", Service: "a", State: "running"},
		{Name: "mixed-b-1", StackName: "mixed", Service: "b", State: "exited"},
		{Name: "sick-db-1", StackName: "sick", Service: "db", State: "running", Health: "unhealthy"},
		{Name: "fresh-x-1", StackName: "fresh", Service: "x", State: "created"},
		{Name: "down-y-1", StackName: "down", Service: "y", State: "dead"},
		{Name: "ext-svc-1", StackName: "ext", Service: "svc", State: "running", Image: "busybox"},
		{Name: "loose", State: "running"},
	}

	got := List(dir, cache, containers)
	if len(got) != 7 {
		t.Fatalf("List() returned %d stacks, want 7: %+v", len(got), got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Name >= got[i].Name {
			t.Fatalf("stacks not sorted by name: %q before %q", got[i-1].Name, got[i].Name)
		}
	}

	m := byName(got)
	tests := []struct {
		name    string
		status  Status
		started bool
		managed bool
	}{
		{"idle", StatusCreatedFile, false, true},
		{"web", StatusRunning, true, true}, // exited redis is ignored
		{"mixed", StatusRunningAndExited, true, true},
		{"sick", StatusUnhealthy, true, true},
		{"fresh", StatusCreatedStack, false, true},
		{"down", StatusExited, false, true},
		{"ext", StatusRunning, true, false},
	}
	for _, tt := range tests {
		s, ok := m[tt.name]
		if !ok {
			t.Errorf("missing stack %q", tt.name)
			continue
		}
		if s.Status != tt.status || s.Started != tt.started || s.Managed != tt.managed {
			t.Errorf("%s: status=%s started=%v managed=%v, want %s %v %v",
				tt.name, s.Status, s.Started, s.Managed, tt.status, tt.started, tt.managed)
		}
	}

	web := m["web"]
	if web.Containers != 2 || web.Running != 1 || web.Services != 2 {
		t.Errorf("web counts = %d containers, %d running, %d services", web.Containers, web.Running, web.Services)
	}
	if web.ComposeFileName != "compose.yaml" {
		t.Errorf("web.ComposeFileName = %q", web.ComposeFileName)
	}
	if len(web.Images) != 2 || web.Images[0] != "nginx" || web.Images[1] != "redis" {
		t.Errorf("web.Images = %v", web.Images)
	}
	if ext := m["ext"]; len(ext.Images) != 1 || ext.Images[0] != "busybox" {
		t.Errorf("ext.Images = %v", ext.Images)
	}
}

func TestListEmpty(t *testing.T) {
	t.Parallel()

	dir, cache := setupStacks(t, nil)
	got := List(dir, cache, nil)
	if got == nil || len(got) != 0 {
		t.Errorf("List() = %#v, want empty non-nil", got)
	}
}

func TestServiceFromName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"web-app-nginx-1": "nginx",
		"stack-db-2":      "db",
		"plain":           "plain",
	}
	for in, want := range tests {
		if got := serviceFromName(in); got != want {
			t.Errorf("serviceFromName(%q) = %q, want %q", in, got, want)
		}
	}
}
