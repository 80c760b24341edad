package app_test

import (
	"encoding/json"
	"testing"

	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
)

func TestGate(t *testing.T) {
	c1 := app.ChannelRef{ChannelID: "c1", ServerID: "s1"}

	t.Run("queues messages of an enabled channel", func(t *testing.T) {
		env := setupEngine(t, nil)
		require.NoError(t, env.engine.SetChannelEnabled(c1, true))

		assert.True(t, env.send(t, "m1", c1))

		entries, err := env.engine.QueuedMessages()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, app.QueueEntry{
			MessageID:  "m1",
			ChannelID:  "c1",
			EnqueuedAt: model.GetMillisForTime(env.clock.Now()),
		}, entries[0])
	})

	t.Run("other channel of the same server is not queued", func(t *testing.T) {
		env := setupEngine(t, nil)
		require.NoError(t, env.engine.SetChannelEnabled(c1, true))

		assert.False(t, env.send(t, "m1", app.ChannelRef{ChannelID: "c2", ServerID: "s1"}))
		assert.Empty(t, env.queued(t))
	})

	t.Run("disabled channel does not touch the queue", func(t *testing.T) {
		env := setupEngine(t, nil)
		env.store.set(app.CollectionName(testUser, "queue"), "not even json")

		assert.False(t, env.send(t, "m1", c1))
		assert.Equal(t, "not even json", env.store.get(app.CollectionName(testUser, "queue")))
	})

	t.Run("filters", func(t *testing.T) {
		env := setupEngine(t, nil)
		require.NoError(t, env.engine.SetChannelEnabled(c1, true))

		events := map[string]app.MessageEvent{
			"other author": {AuthorID: "someone", ChannelID: "c1", ServerID: "s1", MessageID: "m1", State: app.MessageStateSent},
			"optimistic":   {AuthorID: testUser, ChannelID: "c1", ServerID: "s1", MessageID: "m2", IsOptimistic: true},
			"sending":      {AuthorID: testUser, ChannelID: "c1", ServerID: "s1", MessageID: "m3", State: app.MessageStateSending},
			"no id":        {AuthorID: testUser, ChannelID: "c1", ServerID: "s1", State: app.MessageStateSent},
		}
		for name, evt := range events {
			added, err := env.engine.HandleMessage(evt)
			require.NoError(t, err, name)
			assert.False(t, added, name)
		}
		assert.Empty(t, env.queued(t))
	})

	t.Run("same message is queued once", func(t *testing.T) {
		env := setupEngine(t, nil)
		require.NoError(t, env.engine.SetChannelEnabled(c1, true))

		assert.True(t, env.send(t, "m1", c1))
		assert.False(t, env.send(t, "m1", c1))
		assert.Equal(t, []string{"m1"}, env.queued(t))
	})

	t.Run("stored format", func(t *testing.T) {
		env := setupEngine(t, nil)
		require.NoError(t, env.engine.SetChannelEnabled(c1, true))
		env.send(t, "m1", c1)

		var raw []map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(env.store.get(app.CollectionName(testUser, "queue"))), &raw))
		require.Len(t, raw, 1)
		assert.Equal(t, "m1", raw[0]["id"])
		assert.Equal(t, "c1", raw[0]["channel_id"])
		assert.Contains(t, raw[0], "timestamp")
		assert.NotContains(t, raw[0], "attempts")
	})
}

func TestUnprotectMessage(t *testing.T) {
	c1 := app.ChannelRef{ChannelID: "c1", ServerID: "s1"}
	env := setupEngine(t, nil)
	require.NoError(t, env.engine.SetChannelEnabled(c1, true))
	env.send(t, "m1", c1)
	env.send(t, "m2", c1)
	env.send(t, "m3", c1)

	removed, err := env.engine.UnprotectMessage("m2", "c1")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"m1", "m3"}, env.queued(t))

	removed, err = env.engine.UnprotectMessage("m2", "c1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, []string{"m1", "m3"}, env.queued(t))

	removed, err = env.engine.UnprotectMessage("m3", "another channel")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"m1"}, env.queued(t))
}
