package docker

import (
	"context"
	"slices"
	"sync"
)

// StaticClient is an in-memory Client. It serves whatever rows were last set
// and emits events published with Emit. Used by tests and for running the
// console without a daemon.
type StaticClient struct {
	mu         sync.RWMutex
	containers []Container
	images     []Image
	networks   []Network
	volumes    []Volume
	configs    []Config
	err        error

	subMu sync.Mutex
	subs  []chan Event
}

// NewStaticClient returns an empty StaticClient.
func NewStaticClient() *StaticClient {
	return &StaticClient{}
}

func (s *StaticClient) SetContainers(rows []Container) { s.set(func() { s.containers = slices.Clone(rows) }) }
func (s *StaticClient) SetImages(rows []Image)         { s.set(func() { s.images = slices.Clone(rows) }) }
func (s *StaticClient) SetNetworks(rows []Network)     { s.set(func() { s.networks = slices.Clone(rows) }) }
func (s *StaticClient) SetVolumes(rows []Volume)       { s.set(func() { s.volumes = slices.Clone(rows) }) }
func (s *StaticClient) SetConfigs(rows []Config)       { s.set(func() { s.configs = slices.Clone(rows) }) }

// SetError makes every list call fail with err until cleared with nil.
func (s *StaticClient) SetError(err error) { s.set(func() { s.err = err }) }

func (s *StaticClient) set(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}

func list[T any](s *StaticClient, rows *[]T) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	out := slices.Clone(*rows)
	if out == nil {
		out = []T{}
	}
	return out, nil
}

func (s *StaticClient) ContainerList(context.Context) ([]Container, error) {
	return list(s, &s.containers)
}

func (s *StaticClient) ImageList(context.Context) ([]Image, error) {
	return list(s, &s.images)
}

func (s *StaticClient) NetworkList(context.Context) ([]Network, error) {
	return list(s, &s.networks)
}

func (s *StaticClient) VolumeList(context.Context) ([]Volume, error) {
	return list(s, &s.volumes)
}

func (s *StaticClient) ConfigList(context.Context) ([]Config, error) {
	return list(s, &s.configs)
}

// Emit delivers evt to every open event stream. Streams with a full buffer
// drop the event.
func (s *StaticClient) Emit(evt Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (s *StaticClient) Events(ctx context.Context) (<-chan Event, <-chan error) {
	ch := make(chan Event, 64)
	out := make(chan Event, 64)
	outErr := make(chan error, 1)

	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()

	go func() {
		defer close(out)
		defer close(outErr)
		defer func() {
			s.subMu.Lock()
			s.subs = slices.DeleteFunc(s.subs, func(c chan Event) bool { return c == ch })
			s.subMu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-ch:
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, outErr
}

func (s *StaticClient) Close() error {
	return nil
}
