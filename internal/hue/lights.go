package hue

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// lightDescriptor is one entry of GET /lights.
type lightDescriptor struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	ModelID   string `json:"modelid"`
	SWVersion string `json:"swversion"`
	State     State  `json:"state"`
}

// Lights is the light collection of one bridge.
//
// It is populated from the bridge on the first read and cached afterwards.
// Lights are addressed by numeric id or by name; the name index is derived
// from the same fetch and is rebuilt whenever the collection is. Names are
// not unique on a bridge: when two lights share a name the later one wins.
type Lights struct {
	bridge *Bridge

	mu        sync.Mutex
	populated bool
	byID      map[int]*Light
	byName    map[string]int
	order     []int
}

func newLights(bridge *Bridge) *Lights {
	return &Lights{
		bridge: bridge,
		byID:   make(map[int]*Light),
		byName: make(map[string]int),
	}
}

// Populated reports whether the collection has been loaded.
func (c *Lights) Populated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.populated
}

// Refresh discards the cached lights and loads them again.
// Previously returned *Light values keep working but are no longer indexed.
func (c *Lights) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensurePopulated(ctx, true)
}

// Has reports whether key names or identifies a light.
func (c *Lights) Has(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensurePopulated(ctx, false); err != nil {
		return false, err
	}
	_, ok := c.resolve(key)
	return ok, nil
}

// Get returns the light whose name is key or, failing that, whose id is key.
func (c *Lights) Get(ctx context.Context, key string) (*Light, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensurePopulated(ctx, false); err != nil {
		return nil, err
	}
	light, ok := c.resolve(key)
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	return light, nil
}

// GetByID returns the light with the given id.
func (c *Lights) GetByID(ctx context.Context, id int) (*Light, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensurePopulated(ctx, false); err != nil {
		return nil, err
	}
	light, ok := c.byID[id]
	if !ok {
		return nil, &NotFoundError{Key: strconv.Itoa(id)}
	}
	return light, nil
}

// Count returns the number of lights.
func (c *Lights) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensurePopulated(ctx, false); err != nil {
		return 0, err
	}
	return len(c.byID), nil
}

// All returns the lights ordered by id.
func (c *Lights) All(ctx context.Context) ([]*Light, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensurePopulated(ctx, false); err != nil {
		return nil, err
	}
	out := make([]*Light, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out, nil
}

// resolve must be called with c.mu held.
func (c *Lights) resolve(key string) (*Light, bool) {
	if key == "" {
		return nil, false
	}
	if id, ok := c.byName[key]; ok {
		light, found := c.byID[id]
		return light, found
	}
	id, err := strconv.Atoi(key)
	if err != nil {
		return nil, false
	}
	light, ok := c.byID[id]
	return light, ok
}

// ensurePopulated must be called with c.mu held.
func (c *Lights) ensurePopulated(ctx context.Context, force bool) error {
	if c.populated && !force {
		return nil
	}

	transport := c.bridge.Transport(true)

	var raw map[string]lightDescriptor
	if err := transport.Get(ctx, "lights", &raw); err != nil {
		return err
	}

	byID := make(map[int]*Light, len(raw))
	byName := make(map[string]int, len(raw))
	order := make([]int, 0, len(raw))

	for key, desc := range raw {
		id, err := strconv.Atoi(key)
		if err != nil {
			return &TransportError{
				Method: http.MethodGet,
				URL:    transport.url("lights"),
				Err:    fmt.Errorf("invalid light id %q", key),
			}
		}
		byID[id] = newLight(c.bridge, id, desc)
		order = append(order, id)
	}
	sort.Ints(order)

	// Names are indexed in id order so that duplicates resolve deterministically.
	for _, id := range order {
		light := byID[id]
		if prev, dup := byName[light.name]; dup {
			log.Warn().
				Str("name", light.name).
				Int("shadowed", prev).
				Int("light", id).
				Msg("Duplicate light name")
		}
		byName[light.name] = id
	}

	c.byID = byID
	c.byName = byName
	c.order = order
	c.populated = true

	log.Debug().Int("lights", len(byID)).Bool("forced", force).Msg("Lights loaded")
	return nil
}
