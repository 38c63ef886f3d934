package hue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Error kinds. Check them with errors.Is:
//
//	if errors.Is(err, hue.ErrLinkButtonNotPressed) {
//	    // ask the user to press the button and retry
//	}
var (
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("hue: transport failure")

	// ErrLinkButtonNotPressed is matched by a *BridgeError of type 101.
	ErrLinkButtonNotPressed = errors.New("hue: link button not pressed")

	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("hue: not found")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("hue: invalid value")

	// ErrDiscovery is matched by every *DiscoveryError.
	ErrDiscovery = errors.New("hue: discovery failed")
)

// Error types reported by the bridge in its error envelope.
const (
	ErrorTypeUnauthorizedUser     ErrorType = 1
	ErrorTypeResourceNotAvailable ErrorType = 3
	ErrorTypeLinkButtonNotPressed ErrorType = 101
	ErrorTypeDeviceIsOff          ErrorType = 201
)

// ErrorType is the numeric "type" of a bridge error.
// Bridges send it as a number; some firmwares and proxies send a string.
type ErrorType int

// UnmarshalJSON accepts both 101 and "101". A non-numeric string decodes
// as 0 so the rest of the envelope survives.
func (t *ErrorType) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, _ := strconv.Atoi(strings.TrimSpace(s))
		*t = ErrorType(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*t = ErrorType(n)
	return nil
}

// BridgeError is a structured error envelope returned by the bridge.
type BridgeError struct {
	Type        ErrorType `json:"type"`
	Address     string    `json:"address"`
	Description string    `json:"description"`
}

func (e *BridgeError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("hue: bridge error %d at %s: %s", e.Type, e.Address, e.Description)
	}
	return fmt.Sprintf("hue: bridge error %d: %s", e.Type, e.Description)
}

// Is reports link-button errors as ErrLinkButtonNotPressed.
func (e *BridgeError) Is(target error) bool {
	return target == ErrLinkButtonNotPressed && e.Type == ErrorTypeLinkButtonNotPressed
}

// TransportError is an I/O, HTTP status or decoding failure talking to a device.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("hue: %s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("hue: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// NotFoundError is returned when a light lookup by id or name has no match.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("hue: light %q not found", e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError is returned by a setter before any I/O happens.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("hue: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DiscoveryError wraps any failure of the discovery lookup.
type DiscoveryError struct {
	Source string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("hue: discovery via %s failed: %v", e.Source, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

func (e *DiscoveryError) Is(target error) bool { return target == ErrDiscovery }
