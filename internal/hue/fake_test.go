package hue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testUser = "testuser"

// fakeBridge is an in-memory v1 bridge served over httptest.
type fakeBridge struct {
	t      *testing.T
	server *httptest.Server

	mu     sync.Mutex
	users  map[string]bool
	lights map[string]map[string]any
	calls  map[string]int

	// reject makes PUT .../state refuse these fields with error 201.
	reject map[string]bool
	// pairResponse replaces the default POST /api answer.
	pairResponse []map[string]any
	// failStatus makes "METHOD resource" answer with the given status.
	failStatus map[string]int
	// lastPut is the body of the most recent state PUT.
	lastPut map[string]any
}

func newFakeBridge(t *testing.T) *fakeBridge {
	t.Helper()
	fb := &fakeBridge{
		t:          t,
		users:      map[string]bool{testUser: true},
		lights:     make(map[string]map[string]any),
		calls:      make(map[string]int),
		reject:     make(map[string]bool),
		failStatus: make(map[string]int),
	}
	fb.server = httptest.NewServer(http.HandlerFunc(fb.handle))
	t.Cleanup(fb.server.Close)
	return fb
}

func (fb *fakeBridge) address() string {
	u, err := url.Parse(fb.server.URL)
	require.NoError(fb.t, err)
	return u.Host
}

// addLight registers a light from a JSON descriptor.
func (fb *fakeBridge) addLight(id, descriptor string) {
	var desc map[string]any
	require.NoError(fb.t, json.Unmarshal([]byte(descriptor), &desc))
	fb.mu.Lock()
	fb.lights[id] = desc
	fb.mu.Unlock()
}

// setState changes a light behind the client's back.
func (fb *fakeBridge) setState(id, field string, value any) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.lights[id]["state"].(map[string]any)[field] = value
}

func (fb *fakeBridge) fail(key string, status int) {
	fb.mu.Lock()
	fb.failStatus[key] = status
	fb.mu.Unlock()
}

func (fb *fakeBridge) rejectField(field string) {
	fb.mu.Lock()
	fb.reject[field] = true
	fb.mu.Unlock()
}

func (fb *fakeBridge) callCount(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[key]
}

func (fb *fakeBridge) totalCalls() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, c := range fb.calls {
		n += c
	}
	return n
}

func (fb *fakeBridge) resetCalls() {
	fb.mu.Lock()
	fb.calls = make(map[string]int)
	fb.mu.Unlock()
}

func (fb *fakeBridge) handle(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.Path, "/api")
	parts := strings.FieldsFunc(rest, func(c rune) bool { return c == '/' })

	if r.Method == http.MethodPost && len(parts) == 0 {
		fb.calls["POST pair"]++
		fb.pair(w, r)
		return
	}

	if len(parts) == 0 {
		http.NotFound(w, r)
		return
	}

	user, resource := parts[0], strings.Join(parts[1:], "/")
	key := r.Method + " " + resource
	if len(parts) > 2 {
		key = r.Method + " lights/{id}"
		if len(parts) > 3 {
			key += "/state"
		}
	}
	fb.calls[key]++

	if status, ok := fb.failStatus[key]; ok {
		w.WriteHeader(status)
		return
	}

	if !fb.users[user] {
		writeJSON(w, []map[string]any{{"error": map[string]any{"type": 1, "address": "/" + resource, "description": "unauthorized user"}}})
		return
	}

	switch {
	case r.Method == http.MethodGet && len(parts) == 1:
		writeJSON(w, map[string]any{"name": "Fake bridge", "apiversion": "1.60.0"})
	case r.Method == http.MethodGet && resource == "lights":
		writeJSON(w, fb.lights)
	case r.Method == http.MethodGet && len(parts) == 3 && parts[1] == "lights":
		light, ok := fb.lights[parts[2]]
		if !ok {
			writeJSON(w, []map[string]any{{"error": map[string]any{"type": 3, "address": "/lights/" + parts[2], "description": "resource not available"}}})
			return
		}
		writeJSON(w, light)
	case r.Method == http.MethodPut && len(parts) == 4 && parts[1] == "lights" && parts[3] == "state":
		fb.putState(w, r, parts[2])
	default:
		http.NotFound(w, r)
	}
}

func (fb *fakeBridge) pair(w http.ResponseWriter, r *http.Request) {
	if fb.pairResponse != nil {
		writeJSON(w, fb.pairResponse)
		return
	}
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := body["username"]
	if username == "" {
		username = "generated-user"
	}
	fb.users[username] = true
	writeJSON(w, []map[string]any{{"success": map[string]any{"username": username}}})
}

func (fb *fakeBridge) putState(w http.ResponseWriter, r *http.Request, id string) {
	light, ok := fb.lights[id]
	if !ok {
		writeJSON(w, []map[string]any{{"error": map[string]any{"type": 3, "address": "/lights/" + id, "description": "resource not available"}}})
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fb.lastPut = body

	state := light["state"].(map[string]any)
	var acks []map[string]any
	for field, value := range body {
		address := fmt.Sprintf("/lights/%s/state/%s", id, field)
		if fb.reject[field] {
			acks = append(acks, map[string]any{"error": map[string]any{
				"type":        201,
				"address":     address,
				"description": fmt.Sprintf("parameter, %s, is not modifiable. Device is set to off.", field),
			}})
			continue
		}
		state[field] = value
		acks = append(acks, map[string]any{"success": map[string]any{address: value}})
	}
	writeJSON(w, acks)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// newPairedBridge returns a Bridge paired with fb and resets the call counters.
func newPairedBridge(t *testing.T, fb *fakeBridge, opts ...Option) *Bridge {
	t.Helper()
	b := NewBridge(fb.address(), opts...)
	require.NoError(t, b.Pair(context.Background(), "test#device", testUser))
	fb.resetCalls()
	return b
}

const lampDescriptor = `{
	"name": "Lamp",
	"type": "Dimmable",
	"modelid": "M1",
	"swversion": "1.0",
	"state": {"on": false, "bri": 0, "reachable": true}
}`

const colorDescriptor = `{
	"name": "Desk",
	"type": "Extended color light",
	"modelid": "LCT015",
	"swversion": "1.50.2",
	"state": {
		"on": true, "bri": 100, "hue": 8000, "sat": 140, "effect": "none",
		"xy": [0.45, 0.41], "ct": 366, "alert": "none", "colormode": "ct", "reachable": true
	}
}`
