package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dextop-world/dextop/internal/database"
	"github.com/dextop-world/dextop/internal/membership"
	"github.com/dextop-world/dextop/internal/presence"
	"github.com/dextop-world/dextop/internal/relay"
	"github.com/dextop-world/dextop/internal/store"
	"github.com/dextop-world/dextop/pkg/types"
	"github.com/dextop-world/dextop/pkg/wire"
)

type streamFixture struct {
	members *membership.Manager
	relay   *relay.Relay
	streams *FriendStreams
	url     string
}

func newStreamFixture(t *testing.T) streamFixture {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "stream.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	st := store.New(db.DB)
	require.NoError(t, st.EnsureAccount(ctx, "u1", "alice"))
	require.NoError(t, st.EnsureAccount(ctx, "u2", "bob"))

	members := membership.NewManager(membership.Options{
		Registry:    presence.NewRegistry(time.Now),
		Store:       st,
		NewRoomCode: func() (string, error) { return "ROOM01", nil },
	})
	rel := relay.New(st, members, time.Now, types.NewID)

	d, err := rel.SendFriendRequest(ctx, relay.Sender{UserID: "u1", Username: "alice"}, "bob")
	require.NoError(t, err)
	_, err = rel.AcceptFriendRequest(ctx, relay.Sender{UserID: "u2", Username: "bob"}, d.Request.ID)
	require.NoError(t, err)

	streams := NewFriendStreams(rel, types.NewID)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/friends/stream", func(c *gin.Context) {
		if as := c.Query("as"); as != "" {
			c.Set("user_id", as)
		}
		c.Next()
	}, streams.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return streamFixture{
		members: members,
		relay:   rel,
		streams: streams,
		url:     "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/friends/stream",
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) StreamEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestFriendStream_PushesStatusChanges(t *testing.T) {
	f := newStreamFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?as=u1", nil)
	require.NoError(t, err)
	defer conn.Close()

	ev := readEvent(t, conn)
	require.Equal(t, wire.EventFriendStatusUpdate, ev.Type)
	require.Len(t, ev.Data.Friends, 1)
	require.Equal(t, "u2", ev.Data.Friends[0].UserID)
	require.False(t, ev.Data.Friends[0].Online)

	// bob comes online
	f.members.Connect("s2")
	_, err = f.members.BeginAuth("s2", membership.Identity{UserID: "u2", Username: "bob"})
	require.NoError(t, err)
	_, err = f.members.Promote(context.Background(), "s2", "")
	require.NoError(t, err)

	pushes := f.relay.FriendStatusChanged(context.Background(), "u2")
	require.Len(t, pushes, 1)
	require.Equal(t, "u1", pushes[0].UserID)
	for _, sub := range pushes[0].Subscribers {
		require.True(t, f.streams.Deliver(sub, wire.FriendStatusPayload{Friends: pushes[0].Friends}))
	}

	ev = readEvent(t, conn)
	require.Len(t, ev.Data.Friends, 1)
	require.True(t, ev.Data.Friends[0].Online)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return f.streams.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
	require.Empty(t, f.relay.Subscriptions().Of("u1"))
}

func TestFriendStream_RequiresUser(t *testing.T) {
	f := newStreamFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFriendStreams_DeliverUnknown(t *testing.T) {
	streams := NewFriendStreams(nil, types.NewID)
	require.False(t, streams.Deliver("stream:nope", wire.FriendStatusPayload{}))
}
