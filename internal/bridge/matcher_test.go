package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"meshbridge/internal/protocol"
)

func endpointWithChannels(channels ...protocol.ChannelInfo) *Endpoint {
	ep := &Endpoint{ID: "test", Family: "test", Path: "test"}
	ep.setChannels(channels)

	return ep
}

func TestMatchChannelByIdentity(t *testing.T) {
	psk := []byte{1, 2, 3, 4}
	target := endpointWithChannels(
		protocol.ChannelInfo{Index: 0, Name: "default", PSK: []byte{9}, Role: protocol.ChannelRolePrimary},
		protocol.ChannelInfo{Index: 3, Name: "ops", PSK: psk, Role: protocol.ChannelRoleSecondary},
	)

	index, ok := MatchChannel(Channel{Index: 0, Name: "ops", PSK: psk}, target)
	assert.True(t, ok)
	assert.Equal(t, 3, index)
}

func TestMatchChannelRequiresEqualPSK(t *testing.T) {
	target := endpointWithChannels(
		protocol.ChannelInfo{Index: 0, Name: "ops", PSK: []byte{1}, Role: protocol.ChannelRolePrimary},
	)

	_, ok := MatchChannel(Channel{Index: 0, Name: "ops", PSK: []byte{2}}, target)
	assert.False(t, ok)
}

func TestMatchChannelEmptyNameMatchesAnyName(t *testing.T) {
	psk := []byte{7, 7}
	target := endpointWithChannels(
		protocol.ChannelInfo{Index: 1, Name: "ops", PSK: psk, Role: protocol.ChannelRolePrimary},
	)

	index, ok := MatchChannel(Channel{Index: 0, Name: "", PSK: psk}, target)
	assert.True(t, ok)
	assert.Equal(t, 1, index)
}

func TestMatchChannelBothNamesSetMustAgree(t *testing.T) {
	psk := []byte{7, 7}
	target := endpointWithChannels(
		protocol.ChannelInfo{Index: 1, Name: "ops", PSK: psk, Role: protocol.ChannelRolePrimary},
	)

	_, ok := MatchChannel(Channel{Index: 0, Name: "chat", PSK: psk}, target)
	assert.False(t, ok)
}

func TestMatchChannelSkipsDisabled(t *testing.T) {
	psk := []byte{5}
	target := endpointWithChannels(
		protocol.ChannelInfo{Index: 0, Name: "ops", PSK: psk, Role: protocol.ChannelRoleDisabled},
		protocol.ChannelInfo{Index: 2, Name: "ops", PSK: psk, Role: protocol.ChannelRoleSecondary},
	)

	index, ok := MatchChannel(Channel{Index: 0, Name: "ops", PSK: psk}, target)
	assert.True(t, ok)
	assert.Equal(t, 2, index)
}

func TestMatchChannelFirstInArrivalOrder(t *testing.T) {
	psk := []byte{5}
	target := endpointWithChannels(
		protocol.ChannelInfo{Index: 4, PSK: psk, Role: protocol.ChannelRoleSecondary},
		protocol.ChannelInfo{Index: 1, PSK: psk, Role: protocol.ChannelRoleSecondary},
	)

	index, ok := MatchChannel(Channel{Index: 0, PSK: psk}, target)
	assert.True(t, ok)
	assert.Equal(t, 4, index)
}
