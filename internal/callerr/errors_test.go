package callerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorUnwrap(t *testing.T) {
	err := Wrap("join room", ErrRoomFull, "ab12cd34")
	require.True(t, errors.Is(err, ErrRoomFull))
	require.Equal(t, "join room: room is full (ab12cd34)", err.Error())
	require.Equal(t, "start call: media acquisition failed", New("start call", ErrMediaAcquisitionFailed).Error())
}

func TestFromServer(t *testing.T) {
	require.ErrorIs(t, FromServer("join", "room not found"), ErrRoomNotFound)
	require.ErrorIs(t, FromServer("join", "room is full"), ErrRoomFull)

	err := FromServer("join", "something else")
	require.ErrorIs(t, err, ErrSignaling)
	require.Contains(t, err.Error(), "something else")
}
