package main

import (
	"net/http"
	"path/filepath"

	pluginapi "github.com/mattermost/mattermost-plugin-api"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/mattermost/mattermost-server/v6/plugin"
	"github.com/pkg/errors"

	"github.com/ericzzh/mattermost-plugin-autodelete/server/api"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/app"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/bot"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/command"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/config"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/filestore"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/metrics"
	"github.com/ericzzh/mattermost-plugin-autodelete/server/sqlstore"
)

const defaultDataDirectory = "autodelete"

// Plugin implements the interface expected by the Mattermost server to communicate between the server and plugin processes.
type Plugin struct {
	plugin.MattermostPlugin
	config    *config.ServiceImpl
	pluginAPI *pluginapi.Client
	bot       *bot.Bot
	logger    bot.Logger
	registry  *app.Registry
	resolver  *channelResolver
	handler   *api.Handler
}

// ServeHTTP serves the auto-delete API under /plugins/<id>.
func (p *Plugin) ServeHTTP(c *plugin.Context, w http.ResponseWriter, r *http.Request) {
	if p.handler == nil {
		http.Error(w, "auto-delete is not active", http.StatusServiceUnavailable)
		return
	}
	p.handler.ServeHTTP(w, r)
}

// See https://developers.mattermost.com/extend/plugins/server/reference/
func (p *Plugin) OnActivate() error {
	pluginAPIClient := pluginapi.NewClient(p.API, p.Driver)
	p.pluginAPI = pluginAPIClient

	p.config = config.NewConfigService(pluginAPIClient, manifest)

	botID, ensureBotError := pluginAPIClient.Bot.EnsureBot(&model.Bot{
		Username:    "autodelete",
		DisplayName: "Auto-Delete Bot",
		Description: "A bot account created by the auto-delete plugin.",
	})
	if ensureBotError != nil {
		return errors.Wrap(ensureBotError, "failed to ensure auto-delete bot.")
	}

	err := p.config.UpdateConfiguration(func(c *config.Configuration) {
		c.BotUserID = botID
	})
	if err != nil {
		return errors.Wrapf(err, "failed save bot to config")
	}

	p.bot = bot.New(pluginAPIClient, botID)
	p.logger = p.bot

	store, err := p.openStore(p.config.GetConfiguration())
	if err != nil {
		return errors.Wrapf(err, "failed creating the document store")
	}

	p.resolver = &channelResolver{client: pluginAPIClient}
	p.registry = app.NewRegistry(app.EngineDeps{
		Store:         store,
		Deleter:       &postDeleter{client: pluginAPIClient},
		ConfigService: p.config,
		Logger:        p.bot,
		Notifier:      p.bot,
		Observer:      metrics.NewContainer(),
		Locker:        newClusterLocker(p.API),
	})
	if err = p.registry.Start(); err != nil {
		return errors.Wrapf(err, "failed starting auto-delete")
	}

	if err = command.RegisterCommands(p.API.RegisterCommand); err != nil {
		return errors.Wrapf(err, "failed register commands")
	}

	p.handler = api.NewHandler(p.registry, p.resolver, p.config, p.bot, metrics.NewPrometheusHandler())

	return nil
}

func (p *Plugin) openStore(cfg *config.Configuration) (app.DocumentStore, error) {
	if cfg.StorageBackend == config.StorageBackendDatabase {
		return sqlstore.New(p.pluginAPI.Store, p.bot)
	}

	dir := cfg.DataDirectory
	if dir == "" {
		serverConfig := p.pluginAPI.Configuration.GetConfig()
		dir = filepath.Join(*serverConfig.FileSettings.Directory, defaultDataDirectory)
	}
	p.bot.Infof("AutoDelete: keeping data in %s", dir)
	return filestore.New(dir)
}

// OnDeactivate stops every scheduler. Queued messages stay queued until the next activation.
func (p *Plugin) OnDeactivate() error {
	if p.registry != nil {
		p.registry.Stop()
	}
	return nil
}

func (p *Plugin) ExecuteCommand(c *plugin.Context, args *model.CommandArgs) (*model.CommandResponse, *model.AppError) {
	runner := command.NewCommandRunner(c, args, p.logger, p.bot, p.registry, p.resolver, p.config)

	if err := runner.Execute(); err != nil {
		return nil, model.NewAppError("AutoDelete.ExecuteCommand", "app.command.execute.error", nil, err.Error(), http.StatusInternalServerError)
	}

	return &model.CommandResponse{}, nil
}

// MessageHasBeenPosted queues posts of users who have auto-delete on in the post's channel.
// Webhook posts carry the webhook creator as author and are left alone.
func (p *Plugin) MessageHasBeenPosted(c *plugin.Context, post *model.Post) {
	if p.registry == nil || post.IsSystemMessage() || post.GetProp("from_webhook") == "true" {
		return
	}

	engine, err := p.registry.Lookup(post.UserId)
	if err != nil {
		p.logger.Errorf("AutoDelete: not queueing post %s of user %s: %v", post.Id, post.UserId, err)
		return
	}
	if engine == nil {
		return
	}

	ref, err := p.resolver.lookup(post.ChannelId)
	if err != nil {
		p.logger.Warnf("AutoDelete: not queueing post %s: %v", post.Id, err)
		return
	}

	if _, err := engine.HandleMessage(app.MessageEvent{
		AuthorID:  post.UserId,
		ChannelID: post.ChannelId,
		ServerID:  ref.ServerID,
		MessageID: post.Id,
		State:     app.MessageStateSent,
	}); err != nil {
		p.logger.Errorf("AutoDelete: failed to queue post %s of user %s: %v", post.Id, post.UserId, err)
	}
}

// OnConfigurationChange handles any change in the configuration.
func (p *Plugin) OnConfigurationChange() error {
	if p.config == nil {
		return nil
	}

	return p.config.OnConfigurationChange()
}
