package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/config"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	// Due entries were old enough to be deleted.
	Due int
	// Deleted entries were removed by the Deleter.
	Deleted int
	// Gone entries were already deleted by someone else.
	Gone int
	// Retried entries failed and stay queued for the next sweep.
	Retried int
	// Dropped entries failed MaxDeleteAttempts times and were unqueued.
	Dropped int
	// Skipped entries were protected between the snapshot and their turn.
	Skipped int
	// Kept entries were not due yet.
	Kept int
}

type outcome int

const (
	outcomeFinished outcome = iota
	outcomeRetry
)

// Sleeper waits d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Scheduler is the polling loop draining one user's Queue.
type Scheduler struct {
	userID        string
	queue         *Queue
	deleter       Deleter
	configService config.Service
	logger        bot.Logger
	notifier      Notifier
	observer      Observer
	locker        Locker
	now           func() time.Time
	sleep         Sleeper

	// sweepLock keeps sweeps of the same queue from overlapping and guards corruptStreak.
	sweepLock     sync.Mutex
	corruptStreak int

	runLock sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func (s *Scheduler) Name() string {
	return "AutoDeleteScheduler-" + s.userID
}

// Start runs the loop in its own goroutine. Starting a running scheduler does nothing.
func (s *Scheduler) Start() {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.run(ctx, s.stopped)
}

// Stop cancels the loop and waits for it to exit. A wait or delay in progress is
// abandoned; deletions already made in the current sweep are still committed.
func (s *Scheduler) Stop() {
	s.runLock.Lock()
	defer s.runLock.Unlock()

	if s.cancel == nil {
		return
	}

	s.logger.Debugf("AutoDelete: %s stopping", s.Name())
	s.cancel()
	<-s.stopped
	s.cancel = nil
}

func (s *Scheduler) run(ctx context.Context, stopped chan struct{}) {
	s.logger.Debugf("AutoDelete: %s started", s.Name())

	defer func() {
		s.logger.Debugf("AutoDelete: %s finished", s.Name())
		close(stopped)
	}()

	for {
		if err := s.sleep(ctx, s.configService.GetConfiguration().PollInterval()); err != nil {
			return
		}

		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Errorf("AutoDelete: sweep for user %s failed: %v", s.userID, err)
		}
	}
}

// Sweep deletes every due entry once. A queue that cannot be read is reported and left
// untouched. The deletions made are committed even when ctx is cancelled midway. When
// another process is sweeping the same queue the sweep is skipped.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	s.sweepLock.Lock()
	defer s.sweepLock.Unlock()

	var res SweepResult

	unlock, err := s.locker.Lock(ctx, s.queue.name+".sweep")
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Debugf("AutoDelete: skipping sweep for user %s: %v", s.userID, err)
		}
		return res, nil
	}
	defer unlock()
	cfg := s.configService.GetConfiguration()

	entries, err := s.queue.Entries()
	if err != nil {
		if IsCorruptData(err) {
			s.reportCorrupt(cfg)
		}
		return res, err
	}
	s.corruptStreak = 0

	due, pending := partition(entries, model.GetMillisForTime(s.now()), cfg.DeleteAfter().Milliseconds())
	res.Due = len(due)
	res.Kept = len(pending)

	outcomes := map[string]outcome{}
	throttle := false
	for _, entry := range due {
		if throttle {
			throttle = false
			if err := s.sleep(ctx, cfg.DeleteDelay()); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		queued, err := s.queue.Contains(entry.MessageID)
		if err != nil {
			s.logger.Warnf("AutoDelete: stopping sweep for user %s, queue became unreadable: %v", s.userID, err)
			break
		}
		if !queued {
			res.Skipped++
			continue
		}

		throttle = true
		outcomes[entry.MessageID] = s.delete(entry, cfg, &res)
	}

	if len(outcomes) > 0 {
		if err := s.commit(outcomes); err != nil {
			s.observer.ObserveSweep(res)
			return res, errors.Wrap(err, "failed to commit sweep")
		}
	}

	s.observer.ObserveSweep(res)
	if res.Due > 0 {
		s.logger.Debugf("AutoDelete: sweep for user %s: %+v", s.userID, res)
	}
	return res, nil
}

func (s *Scheduler) delete(entry QueueEntry, cfg *config.Configuration, res *SweepResult) outcome {
	err := s.deleter.DeleteMessage(entry.ChannelID, entry.MessageID)
	switch {
	case err == nil:
		res.Deleted++
		return outcomeFinished
	case errors.Is(err, ErrMessageNotFound):
		res.Gone++
		return outcomeFinished
	}

	attempts := entry.Attempts + 1
	if attempts < cfg.MaxDeleteAttempts {
		res.Retried++
		s.logger.Warnf("AutoDelete: failed to delete message %s (attempt %d of %d), will retry: %v",
			entry.MessageID, attempts, cfg.MaxDeleteAttempts, err)
		return outcomeRetry
	}

	res.Dropped++
	s.logger.Errorf("AutoDelete: giving up on message %s after %d attempts: %v", entry.MessageID, attempts, err)
	if cfg.MaxDeleteAttempts > 1 {
		s.notifier.Notify(s.userID, fmt.Sprintf(
			"Auto-delete could not delete one of your messages after %d attempts and stopped trying. Message id: `%s`, channel id: `%s`.",
			attempts, entry.MessageID, entry.ChannelID))
	}
	return outcomeFinished
}

// commit applies outcomes to the queue as it is now, so entries enqueued or protected
// while the sweep ran are left as they are.
func (s *Scheduler) commit(outcomes map[string]outcome) error {
	return s.queue.Update(func(current []QueueEntry) []QueueEntry {
		kept := make([]QueueEntry, 0, len(current))
		for _, e := range current {
			o, attempted := outcomes[e.MessageID]
			switch {
			case !attempted:
				kept = append(kept, e)
			case o == outcomeRetry:
				e.Attempts++
				kept = append(kept, e)
			}
		}
		return kept
	})
}

func (s *Scheduler) reportCorrupt(cfg *config.Configuration) {
	s.corruptStreak++
	s.observer.ObserveCorruptDocument()

	if cfg.CorruptNotifyThreshold > 0 && s.corruptStreak == cfg.CorruptNotifyThreshold {
		s.notifier.Notify(s.userID, fmt.Sprintf(
			"Auto-delete could not read your delete queue %d times in a row. Nothing will be deleted until the queue document `%s` is repaired.",
			s.corruptStreak, s.queue.name))
	}
}

// partition splits entries into those at least threshold milliseconds old at nowMillis and
// the rest. Both keep the order of entries.
func partition(entries []QueueEntry, nowMillis, thresholdMillis int64) (due, pending []QueueEntry) {
	for _, e := range entries {
		if nowMillis-e.EnqueuedAt >= thresholdMillis {
			due = append(due, e)
		} else {
			pending = append(pending, e)
		}
	}
	return due, pending
}
