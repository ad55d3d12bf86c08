package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"
	socket "github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/dextop-world/dextop/pkg/wire"
)

func TestGetFirstAnyWithAck_FuncAck(t *testing.T) {
	var got []any
	payload, ack := getFirstAnyWithAck([]any{
		map[string]any{"roomId": "ABC123"},
		func(args ...any) { got = args },
	})

	require.Equal(t, map[string]any{"roomId": "ABC123"}, payload)
	require.NotNil(t, ack)

	ack(wire.AckSuccess())
	require.Equal(t, []any{wire.AckSuccess()}, got)
}

func TestGetFirstAnyWithAck_SocketAck(t *testing.T) {
	var gotArgs []any
	var gotErr error

	payload, ack := getFirstAnyWithAck([]any{
		"payload",
		socket.Ack(func(args []any, err error) {
			gotArgs = args
			gotErr = err
		}),
	})

	require.Equal(t, "payload", payload)
	require.NotNil(t, ack)

	ack("x", 2)
	require.Equal(t, []any{"x", 2}, gotArgs)
	require.NoError(t, gotErr)
}

func TestGetFirstAnyWithAck_OnlyAck(t *testing.T) {
	payload, ack := getFirstAnyWithAck([]any{func(args ...any) {}})
	require.Nil(t, payload)
	require.NotNil(t, ack)

	payload, ack = getFirstAnyWithAck(nil)
	require.Nil(t, payload)
	require.Nil(t, ack)
}

func TestDecodeAny_IntoWireType(t *testing.T) {
	var req wire.JoinRoomPayload
	require.NoError(t, decodeAny(map[string]any{"roomId": "abc123", "username": "alice"}, &req))
	require.Equal(t, wire.JoinRoomPayload{RoomID: "abc123", Username: "alice"}, req)

	require.Error(t, decodeAny("not an object", &req))
}
