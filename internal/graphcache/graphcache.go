// Package graphcache shares built MethodDataGraphs between the tasks that
// color the same method concurrently, so the expensive colorless build runs
// once per method and session.
package graphcache

import (
	"sync"

	"github.com/vlsergey/secan4go/classpool"
	"github.com/vlsergey/secan4go/colorless"
)

type entry struct {
	once  sync.Once
	graph *colorless.MethodDataGraph
	err   error
}

// Cache stores one lazily built graph per method. Safe for concurrent use;
// concurrent Get calls for the same method share a single build.
type Cache struct {
	mu      sync.Mutex
	entries map[*classpool.CtBehavior]*entry
}

func New() *Cache {
	return &Cache{entries: make(map[*classpool.CtBehavior]*entry)}
}

// Get returns the cached graph for a method, building it on first demand.
// A nil graph with nil error means the method has no body.
func (c *Cache) Get(method *classpool.CtBehavior, build func() (*colorless.MethodDataGraph, error)) (*colorless.MethodDataGraph, error) {
	c.mu.Lock()
	e := c.entries[method]
	if e == nil {
		e = &entry{}
		c.entries[method] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.graph, e.err = build()
	})
	return e.graph, e.err
}
