package hue

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// Effect is a dynamic light effect.
type Effect string

const (
	EffectNone      Effect = "none"
	EffectColorLoop Effect = "colorloop"
)

// Alert is a temporary alert flash.
type Alert string

const (
	AlertNone    Alert = "none"
	AlertSelect  Alert = "select"
	AlertLSelect Alert = "lselect"
)

// Value ranges accepted by the setters.
const (
	MaxBrightness = 255
	MaxHue        = 65535
	MaxSaturation = 255
	MinMirek      = 153
	MaxMirek      = 500
)

// Light is one light of a bridge.
//
// A Light holds two copies of its state: the state last confirmed by the
// bridge and a proposed state. Setters validate and write the proposed state
// only. Commit sends the fields that differ and then reloads both copies from
// the bridge.
type Light struct {
	bridge *Bridge

	id      int
	name    string
	typ     string
	modelID string
	version string

	mu        sync.Mutex
	confirmed State
	proposed  State
}

func newLight(bridge *Bridge, id int, desc lightDescriptor) *Light {
	state := desc.State
	if state == nil {
		state = State{}
	}
	return &Light{
		bridge:    bridge,
		id:        id,
		name:      desc.Name,
		typ:       desc.Type,
		modelID:   desc.ModelID,
		version:   desc.SWVersion,
		confirmed: state,
		proposed:  state.Clone(),
	}
}

// ID returns the bridge-assigned light id.
func (l *Light) ID() int { return l.id }

func (l *Light) Name() string { return l.name }

func (l *Light) Type() string { return l.typ }

func (l *Light) ModelID() string { return l.modelID }

// Version returns the software version of the light.
func (l *Light) Version() string { return l.version }

func (l *Light) String() string {
	return fmt.Sprintf("light %d (%s)", l.id, l.name)
}

// State returns a copy of the proposed state.
func (l *Light) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proposed.Clone()
}

// Diff returns the proposed fields that differ from the confirmed state.
func (l *Light) Diff() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proposed.Diff(l.confirmed)
}

// Revert discards uncommitted changes.
func (l *Light) Revert() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.proposed = l.confirmed.Clone()
}

// Reload fetches the light's state and replaces both copies with it,
// dropping uncommitted changes. On error nothing changes.
func (l *Light) Reload(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reload(ctx)
}

func (l *Light) reload(ctx context.Context) error {
	var resp struct {
		State State `json:"state"`
	}
	if err := l.bridge.Transport(true).Get(ctx, fmt.Sprintf("lights/%d", l.id), &resp); err != nil {
		return err
	}
	if resp.State == nil {
		resp.State = State{}
	}
	l.confirmed = resp.State
	l.proposed = resp.State.Clone()
	return nil
}

// Commit sends the pending changes to the bridge.
//
// With nothing pending it returns true without any I/O. Otherwise the diff
// is sent and the light is reloaded whatever the bridge answered. The result
// is false when the bridge rejected any of the fields; that is not an error,
// since a light may accept some fields and refuse others. Only transport
// failures are returned as errors.
func (l *Light) Commit(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	changes := l.proposed.Diff(l.confirmed)
	if len(changes) == 0 {
		return true, nil
	}

	responses, err := l.bridge.Transport(true).Put(ctx, fmt.Sprintf("lights/%d/state", l.id), changes)
	if err != nil {
		return false, err
	}

	success := true
	var rejected []*BridgeError
	for _, r := range responses {
		if r.Error != nil {
			success = false
			rejected = append(rejected, r.Error)
			log.Warn().
				Int("light", l.id).
				Int("type", int(r.Error.Type)).
				Str("address", r.Error.Address).
				Str("description", r.Error.Description).
				Msg("Bridge rejected state change")
		}
	}

	// The bridge has applied the acks at this point, reload or not.
	l.bridge.recordCommit(ctx, CommitRecord{
		LightID:   l.id,
		LightName: l.name,
		Changes:   changes,
		Success:   success,
		Errors:    rejected,
	})

	if err := l.reload(ctx); err != nil {
		return false, err
	}

	log.Info().
		Int("light", l.id).
		Interface("changes", changes).
		Bool("success", success).
		Msg("Committed light state")

	return success, nil
}

// set writes value to the proposed state. The light must already report field.
func (l *Light) set(field string, value any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.confirmed.Has(field) {
		return &ValidationError{Field: field, Value: value, Reason: "not supported by this light"}
	}
	l.proposed[field] = value
	return nil
}

func (l *Light) setInt(field string, value, min, max int) error {
	if value < min || value > max {
		return &ValidationError{
			Field:  field,
			Value:  value,
			Reason: fmt.Sprintf("must be between %d and %d", min, max),
		}
	}
	return l.set(field, float64(value))
}

func (l *Light) get() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proposed.Clone()
}

// IsReachable reports whether the bridge could reach the light when its
// state was last loaded. It reads the confirmed state.
func (l *Light) IsReachable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.confirmed.Bool(FieldReachable)
}

func (l *Light) IsOn() bool  { return l.get().Bool(FieldOn) }
func (l *Light) IsOff() bool { return !l.IsOn() }

func (l *Light) SetOn(on bool) error { return l.set(FieldOn, on) }
func (l *Light) TurnOn() error       { return l.SetOn(true) }
func (l *Light) TurnOff() error      { return l.SetOn(false) }

// Brightness returns the proposed brightness (0-255).
func (l *Light) Brightness() int { return l.get().Int(FieldBri) }

// SetBrightness proposes a brightness between 0 and 255.
func (l *Light) SetBrightness(value int) error {
	return l.setInt(FieldBri, value, 0, MaxBrightness)
}

// Hue returns the proposed hue (0-65535).
func (l *Light) Hue() int { return l.get().Int(FieldHue) }

// SetHue proposes a hue between 0 and 65535.
func (l *Light) SetHue(value int) error {
	return l.setInt(FieldHue, value, 0, MaxHue)
}

// Saturation returns the proposed saturation (0-255).
func (l *Light) Saturation() int { return l.get().Int(FieldSat) }

// SetSaturation proposes a saturation between 0 and 255.
func (l *Light) SetSaturation(value int) error {
	return l.setInt(FieldSat, value, 0, MaxSaturation)
}

func (l *Light) Effect() Effect { return Effect(l.get().String(FieldEffect)) }

// SetEffect proposes EffectNone or EffectColorLoop.
func (l *Light) SetEffect(effect Effect) error {
	switch effect {
	case EffectNone, EffectColorLoop:
		return l.set(FieldEffect, string(effect))
	}
	return &ValidationError{Field: FieldEffect, Value: effect, Reason: "must be none or colorloop"}
}

// ColorTemperature returns the proposed color temperature in mirek.
func (l *Light) ColorTemperature() int { return l.get().Int(FieldCT) }

// SetColorTemperature proposes a color temperature between 153 and 500 mirek.
func (l *Light) SetColorTemperature(mirek int) error {
	return l.setInt(FieldCT, mirek, MinMirek, MaxMirek)
}

// XY returns the proposed CIE xy coordinates, ok is false if the light has none.
func (l *Light) XY() (x, y float64, ok bool) {
	xy := l.get().Floats(FieldXY)
	if len(xy) != 2 {
		return 0, 0, false
	}
	return xy[0], xy[1], true
}

// SetXY proposes CIE xy coordinates, each between 0 and 1.
func (l *Light) SetXY(x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || x < 0 || x > 1 || y < 0 || y > 1 {
		return &ValidationError{Field: FieldXY, Value: []float64{x, y}, Reason: "coordinates must be between 0 and 1"}
	}
	return l.set(FieldXY, []any{x, y})
}

func (l *Light) Alert() Alert { return Alert(l.get().String(FieldAlert)) }

// SetAlert proposes AlertNone, AlertSelect or AlertLSelect.
func (l *Light) SetAlert(alert Alert) error {
	switch alert {
	case AlertNone, AlertSelect, AlertLSelect:
		return l.set(FieldAlert, string(alert))
	}
	return &ValidationError{Field: FieldAlert, Value: alert, Reason: "must be none, select or lselect"}
}

// ColorMode returns the color mode the light reports (hs, xy or ct).
func (l *Light) ColorMode() string { return l.get().String(FieldColorMode) }

// Snapshot returns the proposed state as a huego.State.
func (l *Light) Snapshot() huego.State {
	s := l.get()
	state := huego.State{
		On:        s.Bool(FieldOn),
		Bri:       uint8(s.Int(FieldBri)),
		Hue:       uint16(s.Int(FieldHue)),
		Sat:       uint8(s.Int(FieldSat)),
		Ct:        uint16(s.Int(FieldCT)),
		Alert:     s.String(FieldAlert),
		Effect:    s.String(FieldEffect),
		ColorMode: s.String(FieldColorMode),
		Reachable: s.Bool(FieldReachable),
	}
	if xy := s.Floats(FieldXY); len(xy) == 2 {
		state.Xy = []float32{float32(xy[0]), float32(xy[1])}
	}
	return state
}
