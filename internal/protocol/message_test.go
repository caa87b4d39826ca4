package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSignal(t *testing.T) {
	for _, typ := range []string{TypeOffer, TypeAnswer, TypeCandidate} {
		require.True(t, IsSignal(typ), typ)
	}
	for _, typ := range []string{TypeChat, TypeJoinSession, TypeSessionJoined, TypeUserLeft, "", "offer"} {
		require.False(t, IsSignal(typ), typ)
	}
}
