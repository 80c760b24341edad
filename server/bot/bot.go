package bot

import (
	"fmt"

	pluginapi "github.com/mattermost/mattermost-plugin-api"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/pkg/errors"
)

// Logger interface - the logging surface shared by the plugin and the standalone agent.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
}

// Poster interface - a small subset of the plugin posting API.
type Poster interface {
	// EphemeralPost sends an ephemeral message to a user as the bot.
	EphemeralPost(userID, channelID string, post *model.Post)

	// DM posts a DM from the plugin bot to the specified user.
	DM(userID string, post *model.Post) error
}

// Bot implements the Poster and Logger interfaces on top of the plugin API.
type Bot struct {
	pluginAPI *pluginapi.Client
	botUserID string
}

// New creates a new bot poster/logger.
func New(api *pluginapi.Client, botUserID string) *Bot {
	return &Bot{
		pluginAPI: api,
		botUserID: botUserID,
	}
}

func (b *Bot) EphemeralPost(userID, channelID string, post *model.Post) {
	post.UserId = b.botUserID
	post.ChannelId = channelID
	b.pluginAPI.Post.SendEphemeralPost(userID, post)
}

func (b *Bot) DM(userID string, post *model.Post) error {
	channel, err := b.pluginAPI.Channel.GetDirect(userID, b.botUserID)
	if err != nil {
		return errors.Wrapf(err, "failed to get bot DM channel with user %s", userID)
	}
	post.ChannelId = channel.Id
	post.UserId = b.botUserID

	if err := b.pluginAPI.Post.CreatePost(post); err != nil {
		return errors.Wrapf(err, "failed to post DM to user %s", userID)
	}
	return nil
}

// Notify DMs userID without blocking the caller on failure; the failure is only logged.
func (b *Bot) Notify(userID, message string) {
	if err := b.DM(userID, &model.Post{Message: message}); err != nil {
		b.Warnf("failed to notify user %s: %v", userID, err)
	}
}

func (b *Bot) Debugf(format string, args ...interface{}) {
	b.pluginAPI.Log.Debug(fmt.Sprintf(format, args...))
}

func (b *Bot) Errorf(format string, args ...interface{}) {
	b.pluginAPI.Log.Error(fmt.Sprintf(format, args...))
}

func (b *Bot) Warnf(format string, args ...interface{}) {
	b.pluginAPI.Log.Warn(fmt.Sprintf(format, args...))
}

func (b *Bot) Infof(format string, args ...interface{}) {
	b.pluginAPI.Log.Info(fmt.Sprintf(format, args...))
}
