package app

import (
	"sync"

	"github.com/pkg/errors"
)

// AllowList is the set of channels a user enabled auto-delete for.
type AllowList struct {
	mu     sync.Mutex
	store  DocumentStore
	locker Locker
	name   string
}

func NewAllowList(store DocumentStore, namespace string) *AllowList {
	return &AllowList{
		store:  store,
		locker: nopLocker{},
		name:   CollectionName(namespace, channelsCollection),
	}
}

func (a *AllowList) load() ([]ChannelRef, error) {
	refs := []ChannelRef{}
	if err := loadCollection(a.store, a.name, &refs); err != nil {
		return nil, errors.Wrap(err, "failed to load channel list")
	}
	return refs, nil
}

func (a *AllowList) replace(refs []ChannelRef) error {
	if refs == nil {
		refs = []ChannelRef{}
	}
	if err := replaceCollection(a.store, a.name, refs); err != nil {
		return errors.Wrap(err, "failed to save channel list")
	}
	return nil
}

func (a *AllowList) List() ([]ChannelRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.load()
}

func (a *AllowList) IsEnabled(ref ChannelRef) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	refs, err := a.load()
	if err != nil {
		return false, err
	}
	return containsRef(refs, ref), nil
}

// SetEnabled adds or removes ref. Adding an enabled channel does not duplicate it and
// removing drops every matching entry, so enable followed by disable always leaves the
// channel out. The list is written back in every case.
func (a *AllowList) SetEnabled(ref ChannelRef, enabled bool) error {
	unlock, err := lockCollection(&a.mu, a.locker, a.name)
	if err != nil {
		return err
	}
	defer unlock()

	refs, err := a.load()
	if err != nil {
		return err
	}
	return a.replace(setRef(refs, ref, enabled))
}

// Toggle flips ref and returns its new state.
func (a *AllowList) Toggle(ref ChannelRef) (bool, error) {
	unlock, err := lockCollection(&a.mu, a.locker, a.name)
	if err != nil {
		return false, err
	}
	defer unlock()

	refs, err := a.load()
	if err != nil {
		return false, err
	}

	enabled := !containsRef(refs, ref)
	if err := a.replace(setRef(refs, ref, enabled)); err != nil {
		return false, err
	}
	return enabled, nil
}

func containsRef(refs []ChannelRef, ref ChannelRef) bool {
	for _, r := range refs {
		if r.matches(ref) {
			return true
		}
	}
	return false
}

func setRef(refs []ChannelRef, ref ChannelRef, enabled bool) []ChannelRef {
	if enabled {
		if containsRef(refs, ref) {
			return refs
		}
		return append(refs, ref)
	}

	kept := refs[:0]
	for _, r := range refs {
		if !r.matches(ref) {
			kept = append(kept, r)
		}
	}
	return kept
}
