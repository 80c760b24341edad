package config

import (
	"time"

	"github.com/pkg/errors"
)

const (
	StorageBackendFile     = "file"
	StorageBackendDatabase = "database"

	minPollIntervalMilliseconds = 100
)

var (
	ErrNegativeThreshold    = errors.New("delete after seconds must not be negative.")
	ErrNegativeDelay        = errors.New("delete delay must not be negative.")
	ErrPollIntervalTooShort = errors.New("poll interval is too short.")
	ErrNoDeleteAttempts     = errors.New("max delete attempts must be at least 1.")
	ErrNegativeNotify       = errors.New("corrupt notify threshold must not be negative.")
	ErrUnknownBackend       = errors.New("unknown storage backend.")
)

// Configuration captures the plugin's external configuration as exposed in the Mattermost server
// configuration, as well as values computed from the configuration. Any public fields will be
// deserialized from the Mattermost server configuration in OnConfigurationChange.
//
// The agent reads the same struct from a YAML file.
type Configuration struct {
	// DeleteAfterSeconds is the age a queued message must reach before it is deleted.
	DeleteAfterSeconds int `yaml:"delete_after_seconds"`

	// DeleteDelayMilliseconds throttles consecutive deletions within one sweep.
	DeleteDelayMilliseconds int `yaml:"delete_delay_milliseconds"`

	// PollIntervalMilliseconds is the idle wait between two sweeps.
	PollIntervalMilliseconds int `yaml:"poll_interval_milliseconds"`

	ShowToggleButton bool `yaml:"show_toggle_button"`

	// MaxDeleteAttempts bounds how many sweeps retry a failed deletion. 1 drops an entry
	// after its first attempt whatever the outcome.
	MaxDeleteAttempts int `yaml:"max_delete_attempts"`

	// CorruptNotifyThreshold is the number of consecutive unreadable queue documents after
	// which the user is notified. 0 disables the notification.
	CorruptNotifyThreshold int `yaml:"corrupt_notify_threshold"`

	StorageBackend string `yaml:"storage_backend"`
	DataDirectory  string `yaml:"data_directory"`

	// BotUserID is filled in on activation, it is never read from a file.
	BotUserID string `yaml:"-"`
}

// Default returns the configuration used for any value left unset.
func Default() *Configuration {
	return &Configuration{
		DeleteAfterSeconds:       30,
		DeleteDelayMilliseconds:  1000,
		PollIntervalMilliseconds: 5000,
		ShowToggleButton:         true,
		MaxDeleteAttempts:        3,
		CorruptNotifyThreshold:   3,
		StorageBackend:           StorageBackendFile,
	}
}

// Clone shallow copies the configuration. Your implementation may require a deep copy if
// your configuration has reference types.
func (c *Configuration) Clone() *Configuration {
	var clone = *c
	return &clone
}

// IsValid checks every tunable and reports the first bad one.
func (c *Configuration) IsValid() error {
	if c.DeleteAfterSeconds < 0 {
		return ErrNegativeThreshold
	}
	if c.DeleteDelayMilliseconds < 0 {
		return ErrNegativeDelay
	}
	if c.PollIntervalMilliseconds < minPollIntervalMilliseconds {
		return errors.Wrapf(ErrPollIntervalTooShort, "got %dms, minimum is %dms", c.PollIntervalMilliseconds, minPollIntervalMilliseconds)
	}
	if c.MaxDeleteAttempts < 1 {
		return ErrNoDeleteAttempts
	}
	if c.CorruptNotifyThreshold < 0 {
		return ErrNegativeNotify
	}
	switch c.StorageBackend {
	case StorageBackendFile, StorageBackendDatabase:
	default:
		return errors.Wrapf(ErrUnknownBackend, "%q", c.StorageBackend)
	}
	return nil
}

func (c *Configuration) DeleteAfter() time.Duration {
	return time.Duration(c.DeleteAfterSeconds) * time.Second
}

func (c *Configuration) DeleteDelay() time.Duration {
	return time.Duration(c.DeleteDelayMilliseconds) * time.Millisecond
}

func (c *Configuration) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMilliseconds) * time.Millisecond
}
