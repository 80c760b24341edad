package main

import (
	pluginapi "github.com/mattermost/mattermost-plugin-api"
	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
)

// postDeleter deletes posts through the plugin API.
type postDeleter struct {
	client *pluginapi.Client
}

func (d *postDeleter) DeleteMessage(channelID, messageID string) error {
	err := d.client.Post.DeletePost(messageID)
	if errors.Is(err, pluginapi.ErrNotFound) {
		return errors.Wrapf(app.ErrMessageNotFound, "post %s in channel %s", messageID, channelID)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete post %s", messageID)
	}
	return nil
}

// channelResolver turns a channel id into the allow-list key. The team id of a direct or
// group message channel is empty.
type channelResolver struct {
	client *pluginapi.Client
}

func (r *channelResolver) lookup(channelID string) (app.ChannelRef, error) {
	channel, err := r.client.Channel.Get(channelID)
	if errors.Is(err, pluginapi.ErrNotFound) {
		return app.ChannelRef{}, errors.Wrapf(app.ErrChannelNotAccessible, "channel %s", channelID)
	}
	if err != nil {
		return app.ChannelRef{}, errors.Wrapf(err, "failed to get channel %s", channelID)
	}
	return app.ChannelRef{ChannelID: channel.Id, ServerID: channel.TeamId}, nil
}

func (r *channelResolver) ResolveChannel(userID, channelID string) (app.ChannelRef, error) {
	ref, err := r.lookup(channelID)
	if err != nil {
		return app.ChannelRef{}, err
	}

	if _, err := r.client.Channel.GetMember(channelID, userID); err != nil {
		if errors.Is(err, pluginapi.ErrNotFound) {
			return app.ChannelRef{}, errors.Wrapf(app.ErrChannelNotAccessible, "user %s is not a member of channel %s", userID, channelID)
		}
		return app.ChannelRef{}, errors.Wrapf(err, "failed to get membership of user %s in channel %s", userID, channelID)
	}
	return ref, nil
}
