package compose

import (
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Cache stores extracted compose data for all stacks.
// Thread-safe via RWMutex. Only stores the fields we need, not the full YAML.
type Cache struct {
	mu   sync.RWMutex
	data map[string]map[string]ServiceData // stackName -> serviceName -> data
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]map[string]ServiceData),
	}
}

// PopulateFromDisk scans the stacks directory and parses all compose files.
// Called once at startup before the watcher starts.
func (c *Cache) PopulateFromDisk(stacksDir string) {
	entries, err := os.ReadDir(stacksDir)
	if err != nil {
		slog.Warn("compose cache: scan stacks dir", "err", err, "dir", stacksDir)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := FindComposeFile(stacksDir, name)
		if path == "" {
			continue
		}
		services, err := ParseFile(path)
		if err != nil {
			slog.Warn("compose cache: parse", "err", err, "stack", name)
			// Keep the stack listed even when its file is broken
			services = map[string]ServiceData{}
		}
		c.data[name] = services
	}

	slog.Info("compose cache populated", "stacks", len(c.data))
}

// Names returns the cached stack names, sorted.
func (c *Cache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.data))
	for name := range c.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Services returns a copy of the service data for a stack, or nil if the
// stack is not cached.
func (c *Cache) Services(stackName string) map[string]ServiceData {
	c.mu.RLock()
	defer c.mu.RUnlock()

	services, ok := c.data[stackName]
	if !ok {
		return nil
	}
	cp := make(map[string]ServiceData, len(services))
	for k, v := range services {
		cp[k] = v
	}
	return cp
}

// IgnoreMap returns stackName → serviceName → true for all services with
// StatusIgnore set.
func (c *Cache) IgnoreMap() map[string]map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]map[string]bool)
	for stackName, services := range c.data {
		for svcName, sd := range services {
			if sd.StatusIgnore {
				if result[stackName] == nil {
					result[stackName] = make(map[string]bool)
				}
				result[stackName][svcName] = true
			}
		}
	}
	return result
}

// Update replaces the cached data for a single stack.
func (c *Cache) Update(stackName string, services map[string]ServiceData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[stackName] = services
}

// Delete removes a stack from the cache.
func (c *Cache) Delete(stackName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, stackName)
}
