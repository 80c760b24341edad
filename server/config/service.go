package config

import (
	"encoding/json"
	"sync"

	pluginapi "github.com/mattermost/mattermost-plugin-api"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/pkg/errors"
)

// Service is the configuration as seen by the rest of the plugin. Implementations must be
// safe for concurrent use; GetConfiguration returns a copy that callers may keep.
type Service interface {
	GetConfiguration() *Configuration
	UpdateConfiguration(f func(*Configuration)) error

	// RegisterConfigChangeListener registers a function that will be called when the config
	// might have been changed. Returns an id which can be used to unregister the listener.
	RegisterConfigChangeListener(listener func()) string
	UnregisterConfigChangeListener(id string)
}

// listeners is shared by both Service implementations.
type listeners struct {
	lock sync.Mutex
	fns  map[string]func()
}

func (l *listeners) register(listener func()) string {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.fns == nil {
		l.fns = make(map[string]func())
	}
	id := model.NewId()
	l.fns[id] = listener
	return id
}

func (l *listeners) unregister(id string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.fns, id)
}

func (l *listeners) notify() {
	l.lock.Lock()
	fns := make([]func(), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.lock.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ServiceImpl holds access to the plugin's Configuration.
type ServiceImpl struct {
	api *pluginapi.Client

	// configurationLock synchronizes access to the configuration.
	configurationLock sync.RWMutex

	// configuration is the active plugin configuration. Consult GetConfiguration and
	// setConfiguration for usage.
	configuration *Configuration

	listeners listeners

	manifest *model.Manifest
}

// NewConfigService creates a new ServiceImpl struct.
func NewConfigService(api *pluginapi.Client, manifest *model.Manifest) *ServiceImpl {
	c := &ServiceImpl{
		api:           api,
		manifest:      manifest,
		configuration: Default(),
	}

	if err := api.Configuration.LoadPluginConfiguration(c.configuration); err != nil {
		api.Log.Error("failed to load plugin configuration, using defaults", "err", err.Error())
		c.configuration = Default()
	}

	return c
}

// GetConfiguration retrieves the active configuration under lock.
func (c *ServiceImpl) GetConfiguration() *Configuration {
	c.configurationLock.RLock()
	defer c.configurationLock.RUnlock()

	return c.configuration.Clone()
}

// UpdateConfiguration applies f to a copy of the active configuration and saves the result
// to the server, which in turn calls OnConfigurationChange.
func (c *ServiceImpl) UpdateConfiguration(f func(*Configuration)) error {
	c.configurationLock.Lock()
	cfg := c.configuration.Clone()
	f(cfg)
	if err := cfg.IsValid(); err != nil {
		c.configurationLock.Unlock()
		return errors.Wrap(err, "refusing to save an invalid configuration")
	}
	c.configuration = cfg
	c.configurationLock.Unlock()

	data, err := json.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal configuration")
	}
	var out map[string]interface{}
	if err = json.Unmarshal(data, &out); err != nil {
		return errors.Wrap(err, "failed to unmarshal configuration to map")
	}

	if err = c.api.Configuration.SavePluginConfig(out); err != nil {
		return errors.Wrap(err, "failed to save plugin config")
	}

	return nil
}

func (c *ServiceImpl) RegisterConfigChangeListener(listener func()) string {
	return c.listeners.register(listener)
}

func (c *ServiceImpl) UnregisterConfigChangeListener(id string) {
	c.listeners.unregister(id)
}

// OnConfigurationChange is invoked when configuration changes may have been made.
// This function satisfies the OnConfigurationChange hook from the plugin API.
func (c *ServiceImpl) OnConfigurationChange() error {
	cfg := Default()

	if err := c.api.Configuration.LoadPluginConfiguration(cfg); err != nil {
		return errors.Wrap(err, "failed to load plugin configuration")
	}

	if err := cfg.IsValid(); err != nil {
		return errors.Wrap(err, "invalid plugin configuration")
	}

	c.configurationLock.Lock()
	if cfg.BotUserID == "" {
		cfg.BotUserID = c.configuration.BotUserID
	}
	c.configuration = cfg
	c.configurationLock.Unlock()

	c.listeners.notify()

	return nil
}

// GetManifest gets the plugin manifest.
func (c *ServiceImpl) GetManifest() *model.Manifest {
	return c.manifest
}
