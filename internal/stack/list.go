package stack

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/chainid/console/internal/compose"
	"github.com/chainid/console/internal/docker"
)

// containerCounts tallies a stack's containers. total and running cover
// every container; the rest only cover services that count toward status.
type containerCounts struct {
	total     int
	running   int
	active    int
	exited    int
	created   int
	paused    int
	unhealthy int
}

// List merges the stacks known to the compose cache with the stacks seen on
// container labels. Stacks without a compose file under stacksDir are
// reported as unmanaged. Services marked chainid.status.ignore are left out
// of status derivation but still counted as containers. The result is sorted
// by name.
func List(stacksDir string, cache *compose.Cache, containers []docker.Container) []Stack {
	stacks := make(map[string]*Stack)

	for _, name := range cache.Names() {
		s := &Stack{
			Name:    name,
			Status:  StatusCreatedFile,
			Managed: true,
		}
		if path := compose.FindComposeFile(stacksDir, name); path != "" {
			s.ComposeFileName = filepath.Base(path)
		}
		services := cache.Services(name)
		s.Services = len(services)
		for _, sd := range services {
			if sd.Image != "" {
				s.Images = append(s.Images, sd.Image)
			}
		}
		stacks[name] = s
	}

	ignore := cache.IgnoreMap()
	counts := make(map[string]*containerCounts)

	for _, c := range containers {
		project := c.StackName
		if project == "" {
			continue
		}

		cc, ok := counts[project]
		if !ok {
			cc = &containerCounts{}
			counts[project] = cc
		}
		cc.total++

		if strings.EqualFold(c.State, "running") {
			cc.running++
		}

		svc := c.Service
		if svc == "" {
			svc = serviceFromName(c.Name)
		}
		if ignore[project][svc] {
			continue
		}

		// Health takes priority over state
		if strings.EqualFold(c.Health, "unhealthy") {
			cc.unhealthy++
			continue
		}
		switch strings.ToLower(c.State) {
		case "running":
			cc.active++
		case "exited", "dead":
			cc.exited++
		case "created":
			cc.created++
		case "paused":
			cc.paused++
		}
	}

	for project, cc := range counts {
		s, ok := stacks[project]
		if !ok {
			s = &Stack{Name: project}
			stacks[project] = s
		}
		s.Containers = cc.total
		s.Running = cc.running
		s.Status = deriveStatus(s.Status, cc)
	}

	// External stacks list the images their containers run
	for _, c := range containers {
		if s := stacks[c.StackName]; s != nil && !s.Managed && c.Image != "" {
			s.Images = append(s.Images, c.Image)
		}
	}

	result := make([]Stack, 0, len(stacks))
	for _, s := range stacks {
		s.Images = uniqueSorted(s.Images)
		s.Started = s.Status.Started()
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func deriveStatus(current Status, cc *containerCounts) Status {
	switch {
	case cc.unhealthy > 0:
		return StatusUnhealthy
	case cc.active > 0 && cc.exited > 0:
		return StatusRunningAndExited
	case cc.active > 0:
		return StatusRunning
	case cc.exited > 0:
		return StatusExited
	case cc.created > 0:
		return StatusCreatedStack
	case cc.paused > 0:
		// paused counts as running for display
		return StatusRunning
	}
	if current == "" {
		return StatusUnknown
	}
	return current
}

// serviceFromName extracts the service from a compose container name of the
// form project-service-N. Best effort; the service label is preferred.
func serviceFromName(containerName string) string {
	parts := strings.Split(containerName, "-")
	if len(parts) < 3 {
		return containerName
	}
	return parts[len(parts)-2]
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	sort.Strings(in)
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
