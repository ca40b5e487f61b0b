package protocolids

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-meshnode/pkg/types"
)

func TestIsSystem(t *testing.T) {
	tests := []struct {
		proto    types.ProtocolID
		expected bool
	}{
		{Ping, true},
		{Identify, true},
		{DHT, true},
		{PubSub, true},
		{Noise, true},
		{"/meshnode/custom/1.0.0", true},
		{"/chat/1.0.0", false},
		{"/meshsub/1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.proto), func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSystem(tt.proto))
		})
	}
}

func TestValidateApp(t *testing.T) {
	assert.NoError(t, ValidateApp("/chat/1.0.0"))
	assert.ErrorIs(t, ValidateApp(""), ErrEmptyProtocol)
	assert.ErrorIs(t, ValidateApp("chat/1.0.0"), ErrInvalidProtocol)
	assert.ErrorIs(t, ValidateApp("/chat /1.0.0"), ErrInvalidProtocol)
	assert.ErrorIs(t, ValidateApp(PubSub), ErrReservedProtocol)
	assert.ErrorIs(t, ValidateApp("/meshnode/anything"), ErrReservedProtocol)
}

func TestSystem_ReturnsCopy(t *testing.T) {
	s := System()
	s[0] = "/mutated"
	assert.Equal(t, Noise, System()[0])
}
