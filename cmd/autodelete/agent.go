package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/kelseyhightower/envconfig"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/metrics"
)

// agentSettings are read from AUTODELETE_* environment variables.
type agentSettings struct {
	ServerURL      string        `envconfig:"SERVER_URL" required:"true"`
	Token          string        `envconfig:"TOKEN" required:"true"`
	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY" default:"5s"`
	MetricsAddr    string        `envconfig:"METRICS_ADDR"`
}

func loadAgentSettings() (*agentSettings, error) {
	var s agentSettings
	if err := envconfig.Process("autodelete", &s); err != nil {
		return nil, errors.Wrap(err, "failed to read agent settings")
	}
	s.ServerURL = strings.TrimSuffix(s.ServerURL, "/")
	return &s, nil
}

// websocketURL turns the server URL into the websocket endpoint base.
func (s *agentSettings) websocketURL() string {
	switch {
	case strings.HasPrefix(s.ServerURL, "https://"):
		return "wss://" + strings.TrimPrefix(s.ServerURL, "https://")
	case strings.HasPrefix(s.ServerURL, "http://"):
		return "ws://" + strings.TrimPrefix(s.ServerURL, "http://")
	}
	return s.ServerURL
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to Mattermost as yourself and auto-delete your messages until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runCmdF,
}

func runCmdF(command *cobra.Command, args []string) error {
	settings, err := loadAgentSettings()
	if err != nil {
		return err
	}

	l, err := openLocal()
	if err != nil {
		return err
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := model.NewAPIv4Client(settings.ServerURL)
	client.SetToken(settings.Token)
	me, _, err := client.GetMe("")
	if err != nil {
		return errors.Wrap(err, "failed to get the current user")
	}
	l.logger.Infof("AutoDelete: running as %s (%s)", me.Username, me.Id)

	if err := l.configService.Watch(ctx); err != nil {
		l.logger.Warnf("AutoDelete: configuration changes will need a restart: %v", err)
	}

	deps := l.deps(&apiDeleter{client: client})
	if settings.MetricsAddr != "" {
		container := metrics.NewContainer()
		deps.Observer = container
		go serveMetrics(ctx, settings.MetricsAddr, l.logger)
	}

	engine := app.NewEngine(me.Id, "", deps)
	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Stop()

	a := &agent{
		settings: settings,
		engine:   engine,
		resolver: newAPIResolver(client),
		logger:   l.logger,
	}
	a.listen(ctx)
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger bot.Logger) {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", metrics.NewPrometheusHandler())

	server := &http.Server{Addr: addr, Handler: router}
	go func() {
		<-ctx.Done()
		server.Close()
	}()

	logger.Infof("AutoDelete: serving metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("AutoDelete: metrics server stopped: %v", err)
	}
}

// agent feeds websocket events of the local user to the engine.
type agent struct {
	settings *agentSettings
	engine   *app.Engine
	resolver channelLookup
	logger   bot.Logger
}

// listen keeps a websocket connection open until ctx is done, reconnecting after
// ReconnectDelay when it drops.
func (a *agent) listen(ctx context.Context) {
	for {
		ws, err := model.NewWebSocketClient4(a.settings.websocketURL(), a.settings.Token)
		if err != nil {
			a.logger.Warnf("AutoDelete: websocket connection failed: %v", err)
		} else {
			a.logger.Debugf("AutoDelete: websocket connected")
			ws.Listen()
			a.consume(ctx, ws.EventChannel)
			ws.Close()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(a.settings.ReconnectDelay):
		}
	}
}

func (a *agent) consume(ctx context.Context, events chan *model.WebSocketEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				a.logger.Warnf("AutoDelete: websocket connection closed")
				return
			}
			if evt.EventType() == model.WebsocketEventPosted {
				a.handlePosted(evt.GetData())
			}
		}
	}
}

// handlePosted queues the post carried by a posted event when the engine accepts it.
func (a *agent) handlePosted(data map[string]interface{}) {
	raw, ok := data["post"].(string)
	if !ok {
		return
	}

	var post model.Post
	if err := json.Unmarshal([]byte(raw), &post); err != nil {
		a.logger.Warnf("AutoDelete: ignoring malformed posted event: %v", err)
		return
	}
	if post.UserId != a.engine.UserID() || post.IsSystemMessage() {
		return
	}

	ref, err := a.resolver.lookup(post.ChannelId)
	if err != nil {
		a.logger.Warnf("AutoDelete: not queueing post %s: %v", post.Id, err)
		return
	}

	if _, err := a.engine.HandleMessage(app.MessageEvent{
		AuthorID:  post.UserId,
		ChannelID: post.ChannelId,
		ServerID:  ref.ServerID,
		MessageID: post.Id,
		State:     app.MessageStateSent,
	}); err != nil {
		a.logger.Errorf("AutoDelete: failed to queue post %s: %v", post.Id, err)
	}
}

type channelLookup interface {
	lookup(channelID string) (app.ChannelRef, error)
}

// apiResolver looks channels up through the REST API. A channel never changes team, so
// results are kept.
type apiResolver struct {
	client *model.Client4

	mu    sync.Mutex
	cache map[string]app.ChannelRef
}

func newAPIResolver(client *model.Client4) *apiResolver {
	return &apiResolver{
		client: client,
		cache:  map[string]app.ChannelRef{},
	}
}

func (r *apiResolver) lookup(channelID string) (app.ChannelRef, error) {
	r.mu.Lock()
	ref, ok := r.cache[channelID]
	r.mu.Unlock()
	if ok {
		return ref, nil
	}

	channel, resp, err := r.client.GetChannel(channelID, "")
	if resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden) {
		return app.ChannelRef{}, errors.Wrapf(app.ErrChannelNotAccessible, "channel %s", channelID)
	}
	if err != nil {
		return app.ChannelRef{}, errors.Wrapf(err, "failed to get channel %s", channelID)
	}

	ref = app.ChannelRef{ChannelID: channel.Id, ServerID: channel.TeamId}
	r.mu.Lock()
	r.cache[channelID] = ref
	r.mu.Unlock()
	return ref, nil
}

// apiDeleter deletes posts through the REST API as the local user.
type apiDeleter struct {
	client *model.Client4
}

func (d *apiDeleter) DeleteMessage(channelID, messageID string) error {
	resp, err := d.client.DeletePost(messageID)
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(app.ErrMessageNotFound, "post %s in channel %s", messageID, channelID)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete post %s", messageID)
	}
	return nil
}
