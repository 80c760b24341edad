package main

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/filestore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	dataDirFlag, configFlag, logFileFlag, logLevelFlag, protectChannel = "", "", "", "info", ""

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	defer RootCmd.SetOut(nil)

	err := Run(args)
	return out.String(), err
}

func TestLocalCommands(t *testing.T) {
	dir := t.TempDir()
	common := []string{"--data-dir", dir, "--log-file", filepath.Join(dir, "autodelete.log")}
	run := func(args ...string) string {
		out, err := execute(t, append(args, common...)...)
		require.NoError(t, err)
		return out
	}

	assert.Contains(t, run("enable", "c1", "team1"), "auto-delete is on for channel c1")
	run("enable", "dm")
	run("enable", "c1", "team1")

	out := run("channels")
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "team1")
	assert.Contains(t, out, "dm")

	doc, err := ioutil.ReadFile(filepath.Join(dir, "channels.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"channel_id":"c1","server_id":"team1"},{"channel_id":"dm","server_id":""}]`, string(doc))

	assert.Contains(t, run("disable", "c1", "team1"), "auto-delete is off for channel c1")
	assert.NotContains(t, run("channels"), "team1")

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "queue.json"),
		[]byte(`[{"id":"m1","channel_id":"c1","timestamp":0},{"id":"m2","channel_id":"dm","timestamp":0,"attempts":2}]`), 0600))

	out = run("queue")
	assert.Contains(t, out, "m1")
	assert.Contains(t, out, "1970-01-01T00:00:00Z")
	assert.Contains(t, out, "m2")

	assert.Contains(t, run("protect", "m1"), "message m1 will not be deleted")
	assert.Contains(t, run("protect", "m1"), "message m1 is not queued")
	assert.NotContains(t, run("queue"), "m1")
}

func TestLocalCommandErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "enable", "--data-dir", dir)
	assert.Error(t, err)

	_, err = execute(t, "channels", "--data-dir", dir, "--log-level", "loud")
	assert.Error(t, err)

	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, ioutil.WriteFile(cfgFile, []byte("storage_backend: database\n"), 0600))
	_, err = execute(t, "channels", "--data-dir", dir, "--config", cfgFile, "--log-level", "info")
	assert.Error(t, err)

	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "queue.json"), []byte("{"), 0600))
	_, err = execute(t, "queue", "--data-dir", dir)
	assert.True(t, app.IsCorruptData(err))
}

type fakeLookup map[string]string

func (f fakeLookup) lookup(channelID string) (app.ChannelRef, error) {
	team, ok := f[channelID]
	if !ok {
		return app.ChannelRef{}, app.ErrChannelNotAccessible
	}
	return app.ChannelRef{ChannelID: channelID, ServerID: team}, nil
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Infof(string, ...interface{})  {}

func postedData(t *testing.T, post *model.Post) map[string]interface{} {
	raw, err := json.Marshal(post)
	require.NoError(t, err)
	return map[string]interface{}{"post": string(raw), "team_id": "ignored"}
}

func TestHandlePosted(t *testing.T) {
	store, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	engine := app.NewEngine("me", "", app.EngineDeps{Store: store, Logger: nopLogger{}})
	require.NoError(t, engine.SetChannelEnabled(app.ChannelRef{ChannelID: "c1", ServerID: "team1"}, true))
	require.NoError(t, engine.SetChannelEnabled(app.ChannelRef{ChannelID: "dm"}, true))

	a := &agent{
		engine:   engine,
		resolver: fakeLookup{"c1": "team1", "dm": "", "c2": "team1"},
		logger:   nopLogger{},
	}

	a.handlePosted(postedData(t, &model.Post{Id: "p1", UserId: "me", ChannelId: "c1"}))
	a.handlePosted(postedData(t, &model.Post{Id: "p2", UserId: "me", ChannelId: "dm"}))
	a.handlePosted(postedData(t, &model.Post{Id: "p3", UserId: "other", ChannelId: "c1"}))
	a.handlePosted(postedData(t, &model.Post{Id: "p4", UserId: "me", ChannelId: "c2"}))
	a.handlePosted(postedData(t, &model.Post{Id: "p5", UserId: "me", ChannelId: "gone"}))
	a.handlePosted(postedData(t, &model.Post{Id: "p6", UserId: "me", ChannelId: "c1", Type: model.PostTypeJoinChannel}))
	a.handlePosted(map[string]interface{}{"post": "{"})
	a.handlePosted(map[string]interface{}{})

	entries, err := engine.QueuedMessages()
	require.NoError(t, err)
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.MessageID)
	}
	assert.Equal(t, []string{"p1", "p2"}, ids)
}

func newTestServer(t *testing.T) (*httptest.Server, *int32) {
	var channelHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v4/posts/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch strings.TrimPrefix(r.URL.Path, "/api/v4/posts/") {
		case "p1":
			w.Write([]byte(`{"status":"OK"}`))
		case "p2":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"id":"app.post.get.app_error","message":"Unable to get the post.","status_code":404}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"id":"app.post.delete.app_error","message":"Unable to delete the post.","status_code":500}`))
		}
	})
	mux.HandleFunc("/api/v4/channels/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&channelHits, 1)
		switch strings.TrimPrefix(r.URL.Path, "/api/v4/channels/") {
		case "c1":
			w.Write([]byte(`{"id":"c1","team_id":"team1","type":"O"}`))
		case "dm":
			w.Write([]byte(`{"id":"dm","team_id":"","type":"D"}`))
		default:
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"id":"api.context.permissions.app_error","message":"no","status_code":403}`))
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &channelHits
}

func TestAPIDeleter(t *testing.T) {
	server, _ := newTestServer(t)
	d := &apiDeleter{client: model.NewAPIv4Client(server.URL)}

	assert.NoError(t, d.DeleteMessage("c1", "p1"))
	assert.True(t, errors.Is(d.DeleteMessage("c1", "p2"), app.ErrMessageNotFound))

	err := d.DeleteMessage("c1", "p3")
	require.Error(t, err)
	assert.False(t, errors.Is(err, app.ErrMessageNotFound))
}

func TestAPIResolver(t *testing.T) {
	server, hits := newTestServer(t)
	r := newAPIResolver(model.NewAPIv4Client(server.URL))

	ref, err := r.lookup("c1")
	require.NoError(t, err)
	assert.Equal(t, app.ChannelRef{ChannelID: "c1", ServerID: "team1"}, ref)

	_, err = r.lookup("c1")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	ref, err = r.lookup("dm")
	require.NoError(t, err)
	assert.Equal(t, app.ChannelRef{ChannelID: "dm"}, ref)

	_, err = r.lookup("private")
	assert.True(t, errors.Is(err, app.ErrChannelNotAccessible))
}

func TestAgentSettings(t *testing.T) {
	t.Setenv("AUTODELETE_SERVER_URL", "https://chat.example.com/")
	t.Setenv("AUTODELETE_TOKEN", "secret")

	s, err := loadAgentSettings()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", s.ServerURL)
	assert.Equal(t, "wss://chat.example.com", s.websocketURL())
	assert.Equal(t, 5*time.Second, s.ReconnectDelay)
	assert.Empty(t, s.MetricsAddr)

	s.ServerURL = "http://localhost:8065"
	assert.Equal(t, "ws://localhost:8065", s.websocketURL())

	os.Unsetenv("AUTODELETE_TOKEN")
	_, err = loadAgentSettings()
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "agent.log")
	logger, closer, err := newLogger(logFile, "debug")
	require.NoError(t, err)

	logger.Debugf("hello %s", "world")
	(&logNotifier{logger: logger}).Notify("u1", "could not delete")
	require.NoError(t, closer.Close())

	data, err := ioutil.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello world")
	assert.Contains(t, string(data), `"user":"u1"`)

	_, _, err = newLogger("", "chatty")
	assert.Error(t, err)
}
