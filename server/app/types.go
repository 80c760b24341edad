package app

import "context"

//go:generate mockgen -destination=mocks/mock_host.go -package=mocks github.com/ericzzh/mattermost-plugin-autodelete/server/app Deleter,Notifier

// ChannelRef identifies a channel with auto-delete enabled. ServerID is the channel's team,
// empty for direct and group messages. The pair is the key of the allow-list.
type ChannelRef struct {
	ChannelID string `json:"channel_id"`
	ServerID  string `json:"server_id"`
}

func (c ChannelRef) matches(other ChannelRef) bool {
	return c.ChannelID == other.ChannelID && c.ServerID == other.ServerID
}

// QueueEntry is a message waiting to be deleted. EnqueuedAt is in milliseconds.
// ChannelID is not tied to the allow-list: an entry is processed even after its channel
// has been disabled.
type QueueEntry struct {
	MessageID  string `json:"id"`
	ChannelID  string `json:"channel_id"`
	EnqueuedAt int64  `json:"timestamp"`

	// Attempts counts failed deletions of this entry in previous sweeps.
	Attempts int `json:"attempts,omitempty"`
}

const (
	MessageStateSending = "SENDING"
	MessageStateSent    = "SENT"
)

// MessageEvent is the host's notification of a created message.
type MessageEvent struct {
	AuthorID     string
	ChannelID    string
	ServerID     string
	MessageID    string
	IsOptimistic bool
	State        string
}

// Deleter performs the remote deletion. It returns ErrMessageNotFound, possibly wrapped,
// when the message no longer exists.
type Deleter interface {
	DeleteMessage(channelID, messageID string) error
}

// Notifier tells a user about a persistent failure. It must not block on delivery errors.
type Notifier interface {
	Notify(userID, message string)
}

// Observer receives sweep outcomes, for metrics.
type Observer interface {
	ObserveSweep(result SweepResult)
	ObserveCorruptDocument()
}

// ChannelResolver maps a channel to the ChannelRef the allow-list is keyed by, checking
// that userID can see the channel.
type ChannelResolver interface {
	ResolveChannel(userID, channelID string) (ChannelRef, error)
}

// Locker serializes changes to a named resource between processes sharing one store. Lock
// blocks until the lock is held or ctx is done. Callers already serialize within a process.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(), err error)
}

type nopObserver struct{}

func (nopObserver) ObserveSweep(SweepResult) {}
func (nopObserver) ObserveCorruptDocument()  {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string) {}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }
