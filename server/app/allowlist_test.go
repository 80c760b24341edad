package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
)

func TestAllowList(t *testing.T) {
	c1 := app.ChannelRef{ChannelID: "c1", ServerID: "s1"}
	c2 := app.ChannelRef{ChannelID: "c2", ServerID: "s1"}

	t.Run("enable then disable leaves the channel out", func(t *testing.T) {
		for _, before := range []bool{false, true} {
			list := app.NewAllowList(newMemStore(), testUser)
			require.NoError(t, list.SetEnabled(c2, true))
			require.NoError(t, list.SetEnabled(c1, before))

			require.NoError(t, list.SetEnabled(c1, true))
			require.NoError(t, list.SetEnabled(c1, false))

			enabled, err := list.IsEnabled(c1)
			require.NoError(t, err)
			assert.False(t, enabled, "prior state %v", before)

			refs, err := list.List()
			require.NoError(t, err)
			assert.Equal(t, []app.ChannelRef{c2}, refs)
		}
	})

	t.Run("enabling twice does not duplicate", func(t *testing.T) {
		list := app.NewAllowList(newMemStore(), testUser)
		require.NoError(t, list.SetEnabled(c1, true))
		require.NoError(t, list.SetEnabled(c1, true))

		refs, err := list.List()
		require.NoError(t, err)
		assert.Len(t, refs, 1)
	})

	t.Run("pair is the key", func(t *testing.T) {
		list := app.NewAllowList(newMemStore(), testUser)
		require.NoError(t, list.SetEnabled(c1, true))

		enabled, err := list.IsEnabled(app.ChannelRef{ChannelID: "c1", ServerID: "s2"})
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("disable removes legacy duplicates", func(t *testing.T) {
		store := newMemStore()
		store.set(app.CollectionName(testUser, "channels"), `[
  {"channel_id": "c1", "server_id": "s1"},
  {"channel_id": "c2", "server_id": "s1"},
  {"channel_id": "c1", "server_id": "s1"}
]`)
		list := app.NewAllowList(store, testUser)
		require.NoError(t, list.SetEnabled(c1, false))

		refs, err := list.List()
		require.NoError(t, err)
		assert.Equal(t, []app.ChannelRef{c2}, refs)
	})

	t.Run("disabling an absent channel still writes", func(t *testing.T) {
		store := newMemStore()
		list := app.NewAllowList(store, testUser)
		require.NoError(t, list.SetEnabled(c1, false))
		assert.Equal(t, "[]", store.get(app.CollectionName(testUser, "channels")))
	})

	t.Run("toggle", func(t *testing.T) {
		list := app.NewAllowList(newMemStore(), testUser)

		enabled, err := list.Toggle(c1)
		require.NoError(t, err)
		assert.True(t, enabled)

		enabled, err = list.Toggle(c1)
		require.NoError(t, err)
		assert.False(t, enabled)

		enabled, err = list.IsEnabled(c1)
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("stored format", func(t *testing.T) {
		store := newMemStore()
		list := app.NewAllowList(store, testUser)
		require.NoError(t, list.SetEnabled(c1, true))

		assert.Equal(t, "[\n  {\n    \"channel_id\": \"c1\",\n    \"server_id\": \"s1\"\n  }\n]", store.get(app.CollectionName(testUser, "channels")))
	})

	t.Run("corrupt list", func(t *testing.T) {
		store := newMemStore()
		store.set(app.CollectionName(testUser, "channels"), `{"channel_id": "c1"}`)
		list := app.NewAllowList(store, testUser)

		_, err := list.IsEnabled(c1)
		assert.True(t, app.IsCorruptData(err))

		err = list.SetEnabled(c1, true)
		assert.True(t, app.IsCorruptData(err))
		assert.Equal(t, `{"channel_id": "c1"}`, store.get(app.CollectionName(testUser, "channels")))
	})
}
