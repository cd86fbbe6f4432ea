package rtm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPresenceWhoNow(t *testing.T) {
	srv := newFakeServer()
	alice := newLoggedInClient(t, srv)

	_, err := alice.Presence.SetState(context.Background(), "room", ChannelTypeMessage, StateDetail{"mood": "typing"})
	require.NoError(t, err)

	resp, err := alice.Presence.WhoNow(context.Background(), "room", ChannelTypeMessage, &WhoNowOptions{
		IncludeUserID: true,
		IncludeState:  true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.TotalOccupancy)
	require.Equal(t, "alice", resp.Occupants[0].UserID)
	require.Equal(t, "typing", resp.Occupants[0].States["mood"])
}

func TestPresenceStateLifecycle(t *testing.T) {
	srv := newFakeServer()
	c := newLoggedInClient(t, srv)

	_, err := c.Presence.SetState(context.Background(), "room", ChannelTypeMessage, nil)
	require.Equal(t, ErrorInvalidArgument, err)

	_, err = c.Presence.SetState(context.Background(), "room", ChannelTypeMessage, StateDetail{"mood": "calm", "status": "here"})
	require.NoError(t, err)

	got, err := c.Presence.GetState(context.Background(), "", "room", ChannelTypeMessage)
	require.NoError(t, err)
	require.Equal(t, "calm", got.States["mood"])
	require.Equal(t, 2, got.StatesCount)

	_, err = c.Presence.RemoveState(context.Background(), "room", ChannelTypeMessage, []string{"mood"})
	require.NoError(t, err)
	got, err = c.Presence.GetState(context.Background(), "alice", "room", ChannelTypeMessage)
	require.NoError(t, err)
	require.NotContains(t, got.States, "mood")
	require.Contains(t, got.States, "status")
}

func TestPresenceCacheFollowsEvents(t *testing.T) {
	srv := newFakeServer()
	c := newLoggedInClient(t, srv)
	_, err := c.Subscribe(context.Background(), "room", nil)
	require.NoError(t, err)

	srv.push(pushPresence, PresenceEvent{
		EventType:   PresenceSnapshot,
		ChannelType: ChannelTypeMessage,
		ChannelName: "room",
		Snapshot: []UserState{
			{UserID: "bob", States: StateDetail{"mood": "calm"}},
			{UserID: "carol"},
		},
	})
	require.Eventually(t, func() bool {
		return len(c.Presence.Snapshot("room", ChannelTypeMessage)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	srv.push(pushPresence, PresenceEvent{
		EventType:   PresenceRemoteLeave,
		ChannelType: ChannelTypeMessage,
		ChannelName: "room",
		Publisher:   "carol",
	})
	require.Eventually(t, func() bool {
		users := c.Presence.Snapshot("room", ChannelTypeMessage)
		return len(users) == 1 && users[0].UserID == "bob"
	}, 2*time.Second, 10*time.Millisecond)

	srv.push(pushPresence, PresenceEvent{
		EventType:    PresenceRemoteStateChange,
		ChannelType:  ChannelTypeMessage,
		ChannelName:  "room",
		Publisher:    "bob",
		StateChanged: StateDetail{"mood": "busy"},
	})
	require.Eventually(t, func() bool {
		users := c.Presence.Snapshot("room", ChannelTypeMessage)
		return len(users) == 1 && users[0].States["mood"] == "busy"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceCacheAppliesIntervals(t *testing.T) {
	srv := newFakeServer()
	c := newLoggedInClient(t, srv)
	_, err := c.Subscribe(context.Background(), "room", nil)
	require.NoError(t, err)

	srv.push(pushPresence, PresenceEvent{
		EventType:   PresenceSnapshot,
		ChannelType: ChannelTypeMessage,
		ChannelName: "room",
		Snapshot:    []UserState{{UserID: "bob"}, {UserID: "carol"}},
	})
	srv.push(pushPresence, PresenceEvent{
		EventType:   PresenceInterval,
		ChannelType: ChannelTypeMessage,
		ChannelName: "room",
		Interval: &IntervalDetail{
			Join:    UserList{Users: []string{"dave"}, UserCount: 1},
			Leave:   UserList{Users: []string{"bob"}, UserCount: 1},
			Timeout: UserList{Users: []string{"carol"}, UserCount: 1},
		},
	})
	require.Eventually(t, func() bool {
		users := c.Presence.Snapshot("room", ChannelTypeMessage)
		return len(users) == 1 && users[0].UserID == "dave"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceCacheDroppedOnUnsubscribe(t *testing.T) {
	srv := newFakeServer()
	c := newLoggedInClient(t, srv)
	_, err := c.Subscribe(context.Background(), "room", nil)
	require.NoError(t, err)

	srv.push(pushPresence, PresenceEvent{
		EventType:   PresenceSnapshot,
		ChannelType: ChannelTypeMessage,
		ChannelName: "room",
		Snapshot:    []UserState{{UserID: "bob"}},
	})
	require.Eventually(t, func() bool {
		return len(c.Presence.Snapshot("room", ChannelTypeMessage)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = c.Unsubscribe(context.Background(), "room")
	require.NoError(t, err)
	require.Empty(t, c.Presence.Snapshot("room", ChannelTypeMessage))
}

func TestPresenceWhereNowAliases(t *testing.T) {
	srv := newFakeServer()
	c := newLoggedInClient(t, srv)
	_, err := c.Presence.WhereNow(context.Background(), "")
	require.NoError(t, err)
	_, err = c.Presence.GetUserChannels(context.Background(), "bob")
	require.NoError(t, err)
	_, err = c.Presence.GetOnlineUsers(context.Background(), "room", ChannelTypeMessage, nil)
	require.NoError(t, err)
}
