package main

import (
	"context"
	"time"

	"github.com/mattermost/mattermost-plugin-api/cluster"
	"github.com/pkg/errors"
)

const defaultLockTimeout = 10 * time.Second

// clusterLocker serializes collection changes between every server of a cluster through
// key value mutexes, so several servers can share one document store.
type clusterLocker struct {
	api     cluster.MutexPluginAPI
	timeout time.Duration
}

func newClusterLocker(api cluster.MutexPluginAPI) *clusterLocker {
	return &clusterLocker{api: api, timeout: defaultLockTimeout}
}

func (l *clusterLocker) Lock(ctx context.Context, name string) (func(), error) {
	m, err := cluster.NewMutex(l.api, name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := m.LockWithContext(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to lock %s", name)
	}
	return m.Unlock, nil
}
