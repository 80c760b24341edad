package app

import (
	"time"

	"github.com/mattermost/mattermost-server/v6/model"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
)

// Gate decides, for every created message, whether it joins the delete queue.
type Gate struct {
	userID    string
	allowList *AllowList
	queue     *Queue
	logger    bot.Logger
	now       func() time.Time
}

func NewGate(userID string, allowList *AllowList, queue *Queue, logger bot.Logger, now func() time.Time) *Gate {
	return &Gate{
		userID:    userID,
		allowList: allowList,
		queue:     queue,
		logger:    logger,
		now:       now,
	}
}

// accepts filters out events that are not a fully sent message of the gate's user. Such
// events are expected and are not errors.
func (g *Gate) accepts(evt MessageEvent) bool {
	if evt.AuthorID != g.userID {
		return false
	}
	if evt.IsOptimistic || evt.State == MessageStateSending {
		return false
	}
	return evt.MessageID != "" && evt.ChannelID != ""
}

// Handle queues the message when its channel is enabled. It reports whether an entry was
// added. The allow-list is consulted with the ServerID carried by the event, resolved when
// the message was sent.
func (g *Gate) Handle(evt MessageEvent) (bool, error) {
	if !g.accepts(evt) {
		return false, nil
	}

	enabled, err := g.allowList.IsEnabled(ChannelRef{ChannelID: evt.ChannelID, ServerID: evt.ServerID})
	if err != nil {
		return false, err
	}
	if !enabled {
		return false, nil
	}

	added, err := g.queue.Append(QueueEntry{
		MessageID:  evt.MessageID,
		ChannelID:  evt.ChannelID,
		EnqueuedAt: model.GetMillisForTime(g.now()),
	})
	if err != nil {
		return false, err
	}

	if added {
		g.logger.Debugf("AutoDelete: queued message %s of channel %s for user %s", evt.MessageID, evt.ChannelID, g.userID)
	}
	return added, nil
}
