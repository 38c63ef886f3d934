package hue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridge_Transport(t *testing.T) {
	b := NewBridge("192.168.1.2")
	assert.Equal(t, "http://192.168.1.2/api/", b.Transport(true).BaseURL())
	assert.Equal(t, "http://192.168.1.2/api/", b.Transport(false).BaseURL())
	assert.False(t, b.IsPaired())

	b.setUsername("abc")
	assert.Equal(t, "http://192.168.1.2/api/abc/", b.Transport(true).BaseURL())
	assert.Equal(t, "http://192.168.1.2/api/", b.Transport(false).BaseURL())
	assert.True(t, b.IsPaired())
}

func TestBridge_Identity(t *testing.T) {
	b := NewBridge("10.0.0.5", WithIdentity("001788fffe123456", "00:17:88:12:34:56", "Philips hue"))
	assert.Equal(t, "10.0.0.5", b.Address())
	assert.Equal(t, "001788fffe123456", b.ID())
	assert.Equal(t, "00:17:88:12:34:56", b.MACAddress())
	assert.Equal(t, "Philips hue", b.Name())
	assert.NotNil(t, b.Lights())
	assert.False(t, b.Lights().Populated())
}

func TestBridge_PairAlreadyValid(t *testing.T) {
	fb := newFakeBridge(t)
	b := NewBridge(fb.address())

	require.NoError(t, b.Pair(context.Background(), "huelink#test", testUser))
	assert.True(t, b.IsPaired())
	assert.Equal(t, testUser, b.Username())
	assert.Equal(t, 1, fb.callCount("GET "))
	assert.Equal(t, 0, fb.callCount("POST pair"), "no registration when the username is accepted")
}

func TestBridge_PairRegisters(t *testing.T) {
	fb := newFakeBridge(t)
	b := NewBridge(fb.address())

	require.NoError(t, b.Pair(context.Background(), "huelink#test", "newuser"))
	assert.Equal(t, "newuser", b.Username())
	assert.Equal(t, 1, fb.callCount("POST pair"))
}

func TestBridge_PairUsesIssuedUsername(t *testing.T) {
	fb := newFakeBridge(t)
	b := NewBridge(fb.address())

	require.NoError(t, b.Pair(context.Background(), "huelink#test", ""))
	assert.Equal(t, "generated-user", b.Username())
	assert.Equal(t, 0, fb.callCount("GET "))
}

func TestBridge_PairErrors(t *testing.T) {
	tests := []struct {
		name         string
		response     string
		linkButton   bool
		wantType     ErrorType
		wantDescribe string
	}{
		{
			name:         "link button string type",
			response:     `[{"error":{"type":"101","address":"","description":"link button not pressed"}}]`,
			linkButton:   true,
			wantType:     ErrorTypeLinkButtonNotPressed,
			wantDescribe: "link button not pressed",
		},
		{
			name:         "link button numeric type",
			response:     `[{"error":{"type":101,"address":"","description":"link button not pressed"}}]`,
			linkButton:   true,
			wantType:     ErrorTypeLinkButtonNotPressed,
			wantDescribe: "link button not pressed",
		},
		{
			name:         "non-numeric type keeps description",
			response:     `[{"error":{"type":"link","address":"","description":"link button not pressed"}}]`,
			wantType:     0,
			wantDescribe: "link button not pressed",
		},
		{
			name:         "other bridge error",
			response:     `[{"error":{"type":7,"address":"/username","description":"invalid value, x, for parameter, username"}}]`,
			wantType:     7,
			wantDescribe: "invalid value, x, for parameter, username",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := newFakeBridge(t)
			require.NoError(t, json.Unmarshal([]byte(tt.response), &fb.pairResponse))
			b := NewBridge(fb.address())

			err := b.Pair(context.Background(), "huelink#test", "x")
			require.Error(t, err)
			assert.Equal(t, tt.linkButton, errors.Is(err, ErrLinkButtonNotPressed))

			var be *BridgeError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tt.wantType, be.Type)
			assert.Equal(t, tt.wantDescribe, be.Description)

			assert.False(t, b.IsPaired(), "credential stays unset")
			assert.Empty(t, b.Username())
		})
	}
}

func TestBridge_PairTransportFailure(t *testing.T) {
	fb := newFakeBridge(t)
	fb.fail("GET ", http.StatusInternalServerError)
	b := NewBridge(fb.address())

	err := b.Pair(context.Background(), "huelink#test", testUser)
	require.ErrorIs(t, err, ErrTransport)
	assert.False(t, b.IsPaired())
	assert.Equal(t, 0, fb.callCount("POST pair"))
}

func TestBridge_RePairReplacesCredential(t *testing.T) {
	fb := newFakeBridge(t)
	b := newPairedBridge(t, fb)

	require.NoError(t, b.Pair(context.Background(), "huelink#test", "second"))
	assert.Equal(t, "second", b.Username())
}

func TestBridge_RateLimitedTransportStillWorks(t *testing.T) {
	fb := newFakeBridge(t)
	fb.addLight("1", lampDescriptor)
	b := newPairedBridge(t, fb, WithRateLimit(1000))

	n, err := b.Lights().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBridge_RateLimitHonoursContext(t *testing.T) {
	fb := newFakeBridge(t)
	fb.addLight("1", lampDescriptor)
	b := newPairedBridge(t, fb, WithRateLimit(0.001))

	// pairing consumed the only token
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Lights().Count(ctx)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 0, fb.callCount("GET lights"))
}

func TestErrorType_Unmarshal(t *testing.T) {
	tests := []struct {
		in      string
		want    ErrorType
		wantErr bool
	}{
		{in: `101`, want: 101},
		{in: `"101"`, want: 101},
		{in: ` 1 `, want: 1},
		{in: `" 7 "`, want: 7},
		{in: `"abc"`, want: 0},
		{in: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got ErrorType
			err := json.Unmarshal([]byte(tt.in), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
