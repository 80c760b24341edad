package app

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/config"
)

// EngineDeps are the collaborators shared by every Engine.
type EngineDeps struct {
	Store         DocumentStore
	Deleter       Deleter
	ConfigService config.Service
	Logger        bot.Logger

	// The rest are optional. Locker is needed when several processes share Store.
	Notifier Notifier
	Observer Observer
	Locker   Locker
	Now      func() time.Time
	Sleep    Sleeper
}

func (d EngineDeps) withDefaults() EngineDeps {
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	if d.Observer == nil {
		d.Observer = nopObserver{}
	}
	if d.Locker == nil {
		d.Locker = nopLocker{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = sleep
	}
	return d
}

// Engine is auto-delete for one local user.
type Engine struct {
	userID    string
	store     DocumentStore
	allowList *AllowList
	queue     *Queue
	gate      *Gate
	scheduler *Scheduler
	logger    bot.Logger
}

// NewEngine builds an engine whose collections live under namespace. Nothing is read or
// written before Start or the first operation.
func NewEngine(userID, namespace string, deps EngineDeps) *Engine {
	deps = deps.withDefaults()

	allowList := NewAllowList(deps.Store, namespace)
	allowList.locker = deps.Locker
	queue := NewQueue(deps.Store, namespace)
	queue.locker = deps.Locker

	return &Engine{
		userID:    userID,
		store:     deps.Store,
		allowList: allowList,
		queue:     queue,
		gate:      NewGate(userID, allowList, queue, deps.Logger, deps.Now),
		scheduler: &Scheduler{
			userID:        userID,
			queue:         queue,
			deleter:       deps.Deleter,
			configService: deps.ConfigService,
			logger:        deps.Logger,
			notifier:      deps.Notifier,
			observer:      deps.Observer,
			locker:        deps.Locker,
			now:           deps.Now,
			sleep:         deps.Sleep,
		},
		logger: deps.Logger,
	}
}

func (e *Engine) UserID() string {
	return e.userID
}

// Start creates both collections when missing and starts the scheduler.
func (e *Engine) Start() error {
	for _, name := range []string{e.allowList.name, e.queue.name} {
		if err := e.store.EnsureExists(name); err != nil {
			return errors.Wrapf(err, "failed to prepare collection %s", name)
		}
	}
	e.scheduler.Start()
	return nil
}

func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// Sweep runs one sweep now, outside of the polling loop.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	return e.scheduler.Sweep(ctx)
}

// HandleMessage is the entry point for message created notifications.
func (e *Engine) HandleMessage(evt MessageEvent) (bool, error) {
	return e.gate.Handle(evt)
}

// ToggleChannel flips ref in the allow-list and returns the new state.
func (e *Engine) ToggleChannel(ref ChannelRef) (bool, error) {
	enabled, err := e.allowList.Toggle(ref)
	if err != nil {
		return false, err
	}
	e.logger.Debugf("AutoDelete: user %s set channel %s (server %s) to %v", e.userID, ref.ChannelID, ref.ServerID, enabled)
	return enabled, nil
}

func (e *Engine) SetChannelEnabled(ref ChannelRef, enabled bool) error {
	return e.allowList.SetEnabled(ref, enabled)
}

func (e *Engine) IsChannelEnabled(ref ChannelRef) (bool, error) {
	return e.allowList.IsEnabled(ref)
}

func (e *Engine) Channels() ([]ChannelRef, error) {
	return e.allowList.List()
}

// UnprotectMessage takes messageID out of the queue so it is never deleted. channelID is
// not used for matching.
func (e *Engine) UnprotectMessage(messageID, channelID string) (bool, error) {
	removed, err := e.queue.Remove(messageID)
	if err != nil {
		return false, err
	}
	if removed {
		e.logger.Debugf("AutoDelete: user %s protected message %s in channel %s", e.userID, messageID, channelID)
	}
	return removed, nil
}

func (e *Engine) QueuedMessages() ([]QueueEntry, error) {
	return e.queue.Entries()
}
