package usecase

import (
	"encoding/json"
	"testing"

	"notification-sync-service/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name string
		raw  string
		want interface{}
	}{
		{"unread sub", `{"type":"notifications_sub","payload":{"cmdId":1,"limit":10}}`, &UnreadNotificationsSubCmd{CmdID: 1, Limit: 10}},
		{"count sub", `{"type":"notifications_count_sub","payload":{"cmdId":2}}`, &UnreadCountSubCmd{CmdID: 2}},
		{"mark as read", `{"type":"mark_as_read","payload":{"notificationId":"` + id.String() + `"}}`, &MarkAsReadCmd{NotificationID: id}},
		{"unsub", `{"type":"unsub","payload":{"cmdId":3}}`, &UnsubscribeCmd{CmdID: 3}},
		{"refresh", `{"type":"refresh","payload":{"cmdId":4}}`, &RefreshCmd{CmdID: 4}},
		{"ping", `{"type":"ping"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cmd, err := ParseCommand([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"type":"launch_rockets","payload":{}}`,
		`{"type":"unsub"}`,
		`{"type":"unsub","payload":{"cmdId":"one"}}`,
	} {
		_, _, err := ParseCommand([]byte(raw))
		assert.ErrorIs(t, err, ErrBadCommand, raw)
		assert.Equal(t, ErrorCodeBadCommand, ErrorCodeFor(err))
	}
}

func TestUpdates_WireFormat(t *testing.T) {
	state, err := NewUnreadNotificationsState(3)
	require.NoError(t, err)

	full, err := json.Marshal(NewFullUpdate(5, state))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notifications_update","cmdId":5,"updateType":"full","notifications":[],"totalUnreadCount":0}`, string(full))

	n := newUnread(uuid.New(), 0)
	state.Upsert(n, true)
	partial, err := json.Marshal(NewPartialUpdate(5, n, state))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(partial, &decoded))
	assert.Equal(t, "partial", decoded["updateType"])
	assert.Equal(t, float64(1), decoded["totalUnreadCount"])
	assert.NotContains(t, decoded, "notifications")
	assert.Equal(t, n.ID.String(), decoded["update"].(map[string]interface{})["id"])

	count, err := json.Marshal(&UnreadCountUpdate{CmdID: 2, TotalUnreadCount: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notifications_count_update","cmdId":2,"totalUnreadCount":0}`, string(count))

	errUpdate, err := json.Marshal(NewErrorUpdate(9, ErrUnknownSubscription))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","cmdId":9,"errorCode":"UNKNOWN_SUBSCRIPTION","errorMsg":"unknown subscription"}`, string(errUpdate))
}

func TestNotificationStatusHelpers(t *testing.T) {
	n := newUnread(uuid.New(), 0)
	assert.False(t, n.IsRead())
	assert.Equal(t, entity.NotificationStatusRead, readCopy(n).Status)
	assert.False(t, n.IsRead())
}
