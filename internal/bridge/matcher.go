package bridge

import "meshbridge/internal/protocol"

// MatchMode controls routing when the source channel's configuration has
// not arrived yet.
type MatchMode string

const (
	// MatchModeStrict refuses to forward until the source channel table is
	// known, so confidential traffic can never land on a numerically
	// coincident but unrelated channel. Pre-config messages are buffered
	// by the engine and replayed once configuration arrives.
	MatchModeStrict MatchMode = "strict"
	// MatchModePassthrough routes to the same numeric index on every
	// target without a secret check.
	MatchModePassthrough MatchMode = "passthrough"
)

// MatchChannel decides which channel on target carries the same logical
// channel as src. The secret material must be byte-identical; display
// names must match only when both sides have one. The first hit in the
// target's channel arrival order wins. ok is false when the target has no
// matching channel, which simply skips that destination.
func MatchChannel(src Channel, target *Endpoint) (int, bool) {
	for _, candidate := range target.Channels() {
		if candidate.Role == protocol.ChannelRoleDisabled {
			continue
		}
		if src.SameIdentity(candidate) {
			return candidate.Index, true
		}
	}

	return 0, false
}
