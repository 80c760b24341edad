package config

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"
)

// FileService serves a Configuration read from a YAML file. An empty path keeps the
// configuration in memory only.
type FileService struct {
	path string

	lock          sync.RWMutex
	configuration *Configuration

	listeners listeners
}

// NewFileService loads path on top of the defaults. A missing file is not an error.
func NewFileService(path string) (*FileService, error) {
	s := &FileService{path: path, configuration: Default()}
	if path == "" {
		return s, nil
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	s.configuration = cfg
	return s, nil
}

// NewMemoryService serves cfg without any backing file.
func NewMemoryService(cfg *Configuration) *FileService {
	return &FileService{configuration: cfg.Clone()}
}

// LoadFile decodes a YAML document over Default and validates the result.
func LoadFile(path string) (*Configuration, error) {
	cfg := Default()

	data, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	if err := cfg.IsValid(); err != nil {
		return nil, errors.Wrapf(err, "invalid config file %s", path)
	}

	return cfg, nil
}

func (s *FileService) GetConfiguration() *Configuration {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.configuration.Clone()
}

// UpdateConfiguration applies f and writes the file back when there is one.
func (s *FileService) UpdateConfiguration(f func(*Configuration)) error {
	s.lock.Lock()
	cfg := s.configuration.Clone()
	f(cfg)
	if err := cfg.IsValid(); err != nil {
		s.lock.Unlock()
		return errors.Wrap(err, "refusing to save an invalid configuration")
	}
	s.configuration = cfg
	s.lock.Unlock()

	if s.path != "" {
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal configuration")
		}
		if err := ioutil.WriteFile(s.path, data, 0600); err != nil {
			return errors.Wrapf(err, "failed to write config file %s", s.path)
		}
	}

	s.listeners.notify()
	return nil
}

func (s *FileService) RegisterConfigChangeListener(listener func()) string {
	return s.listeners.register(listener)
}

func (s *FileService) UnregisterConfigChangeListener(id string) {
	s.listeners.unregister(id)
}

// Reload re-reads the file. An invalid file leaves the active configuration untouched.
func (s *FileService) Reload() error {
	if s.path == "" {
		return nil
	}

	cfg, err := LoadFile(s.path)
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.configuration = cfg
	s.lock.Unlock()

	s.listeners.notify()
	return nil
}

// Watch reloads the configuration whenever the file is written, until ctx is done.
func (s *FileService) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "could not setup watcher")
	}

	// the directory is watched to pick up editors that save by rename
	configFile := filepath.Clean(s.path)
	if err := watcher.Add(filepath.Dir(configFile)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "could not watch %s", filepath.Dir(configFile))
	}

	go func() {
		defer watcher.Close()
		const writeOrCreateMask = fsnotify.Write | fsnotify.Create
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != configFile || event.Op&writeOrCreateMask == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					log.Error().Err(err).Msg("config reload failed, keeping previous configuration")
					continue
				}
				log.Info().Str("path", configFile).Msg("configuration reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("watcher error")
			}
		}
	}()

	return nil
}
