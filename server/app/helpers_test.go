package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/config"
)

const testUser = "user1"

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{docs: map[string][]byte{}}
}

func (m *memStore) EnsureExists(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[name]; !ok {
		m.docs[name] = []byte(app.EmptyDocument)
	}
	return nil
}

func (m *memStore) Read(name string) ([]byte, error) {
	if err := m.EnsureExists(name); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.docs[name]...), nil
}

func (m *memStore) Write(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) set(name, doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = []byte(doc)
}

func (m *memStore) get(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.docs[name])
}

type testLogger struct {
	t *testing.T
}

func (l testLogger) Debugf(format string, args ...interface{}) { l.t.Logf("DEBUG "+format, args...) }
func (l testLogger) Errorf(format string, args ...interface{}) { l.t.Logf("ERROR "+format, args...) }
func (l testLogger) Warnf(format string, args ...interface{})  { l.t.Logf("WARN "+format, args...) }
func (l testLogger) Infof(format string, args ...interface{})  { l.t.Logf("INFO "+format, args...) }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeDeleter records calls and runs an optional hook before answering.
type fakeDeleter struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	hook  func(messageID string)
}

func (d *fakeDeleter) DeleteMessage(channelID, messageID string) error {
	d.mu.Lock()
	d.calls = append(d.calls, messageID)
	hook := d.hook
	err := d.errs[messageID]
	d.mu.Unlock()

	if hook != nil {
		hook(messageID)
	}
	return err
}

func (d *fakeDeleter) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

type testEnv struct {
	store   *memStore
	clock   *clock
	deleter *fakeDeleter
	sleeper *recordingSleeper
	config  *config.FileService
	engine  *app.Engine
}

func setupEngine(t *testing.T, modify func(*config.Configuration)) *testEnv {
	t.Helper()

	cfg := config.Default()
	if modify != nil {
		modify(cfg)
	}
	require.NoError(t, cfg.IsValid())

	env := &testEnv{
		store:   newMemStore(),
		clock:   newClock(),
		deleter: &fakeDeleter{errs: map[string]error{}},
		sleeper: &recordingSleeper{},
		config:  config.NewMemoryService(cfg),
	}
	env.engine = app.NewEngine(testUser, testUser, env.deps(t))
	return env
}

func (env *testEnv) deps(t *testing.T) app.EngineDeps {
	return app.EngineDeps{
		Store:         env.store,
		Deleter:       env.deleter,
		ConfigService: env.config,
		Logger:        testLogger{t},
		Now:           env.clock.Now,
		Sleep:         env.sleeper.Sleep,
	}
}

func (env *testEnv) send(t *testing.T, messageID string, ref app.ChannelRef) bool {
	t.Helper()
	added, err := env.engine.HandleMessage(app.MessageEvent{
		AuthorID:  testUser,
		ChannelID: ref.ChannelID,
		ServerID:  ref.ServerID,
		MessageID: messageID,
		State:     app.MessageStateSent,
	})
	require.NoError(t, err)
	return added
}

func (env *testEnv) queued(t *testing.T) []string {
	t.Helper()
	entries, err := env.engine.QueuedMessages()
	require.NoError(t, err)
	ids := []string{}
	for _, e := range entries {
		ids = append(ids, e.MessageID)
	}
	return ids
}
