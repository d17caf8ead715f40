package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Armin-kho/deal-gate-bot/internal/affiliate"
)

var (
	ErrNotFound = errors.New("config file not found")
	ErrCorrupt  = errors.New("config file is corrupt")
)

// Tier selects one of the two gating collections.
type Tier string

const (
	TierGating   Tier = "join"
	TierRequired Tier = "req"
)

// Data is the persisted bot configuration. Key names match existing
// pro_db.json files.
type Data struct {
	Channels         Channels `json:"channels"`
	RequiredChannels Channels `json:"req_channels"`
	PostChannel      *int64   `json:"post_channel"`
	Users            []int64  `json:"users"`
	AmazonTag        string   `json:"amzn_tag"`
	CuePublisherID   string   `json:"cue_pub_id"`
}

// Default returns the all-empty configuration.
func Default() Data {
	return Data{
		Channels:         Channels{},
		RequiredChannels: Channels{},
		Users:            []int64{},
	}
}

func (d Data) clone() Data {
	out := d
	out.Channels = d.Channels.clone()
	out.RequiredChannels = d.RequiredChannels.clone()
	out.Users = append([]int64{}, d.Users...)
	if d.PostChannel != nil {
		v := *d.PostChannel
		out.PostChannel = &v
	}
	return out
}

// normalize fills missing fields and drops duplicate users.
func (d *Data) normalize() {
	if d.Channels == nil {
		d.Channels = Channels{}
	}
	if d.RequiredChannels == nil {
		d.RequiredChannels = Channels{}
	}
	seen := make(map[int64]bool, len(d.Users))
	users := make([]int64, 0, len(d.Users))
	for _, u := range d.Users {
		if seen[u] {
			continue
		}
		seen[u] = true
		users = append(users, u)
	}
	d.Users = users
}

// Load reads the configuration at path. On a missing or unparsable file it
// returns Default() together with ErrNotFound or ErrCorrupt.
func Load(path string) (Data, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), ErrNotFound
	}
	if err != nil {
		return Default(), errors.Wrapf(ErrCorrupt, "read %s: %v", path, err)
	}
	var d Data
	if err := json.Unmarshal(b, &d); err != nil {
		return Default(), errors.Wrapf(ErrCorrupt, "decode %s: %v", path, err)
	}
	d.normalize()
	return d, nil
}

// Save overwrites path with d.
func Save(path string, d Data) error {
	d.normalize()
	b, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return errors.Wrap(err, "write config")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "replace config")
	}
	return nil
}

// Store owns the process-wide configuration. Every mutation is applied to a
// copy, persisted, and only then made visible.
type Store struct {
	path string
	log  *zap.Logger

	mu   sync.Mutex
	data Data
}

// Open loads path, falling back to the default configuration when the file is
// missing or corrupt.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrap(err, "create data dir")
	}
	data, err := Load(path)
	switch {
	case errors.Is(err, ErrNotFound):
		logger.Info("no config file, starting empty", zap.String("path", path))
	case err != nil:
		logger.Warn("config file unreadable, starting empty", zap.String("path", path), zap.Error(err))
	}
	return &Store{path: path, log: logger, data: data}, nil
}

// Snapshot returns a deep copy of the current configuration.
func (s *Store) Snapshot() Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

// Tags returns the affiliate identifiers for the link rewriter.
func (s *Store) Tags() affiliate.Tags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return affiliate.Tags{AmazonTag: s.data.AmazonTag, CuePublisherID: s.data.CuePublisherID}
}

// GateSet returns gating and required channels merged into one ordered set.
func (s *Store) GateSet() Channels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Merge(s.data.Channels, s.data.RequiredChannels)
}

// PostChannel returns the scheduled-post target, if set.
func (s *Store) PostChannel() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.PostChannel == nil {
		return 0, false
	}
	return *s.data.PostChannel, true
}

// Users returns the broadcast recipients in registration order.
func (s *Store) Users() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64{}, s.data.Users...)
}

// RegisterUser appends userID on first contact and persists.
func (s *Store) RegisterUser(userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.data.Users {
		if u == userID {
			return false, nil
		}
	}
	err := s.commitLocked(func(d *Data) { d.Users = append(d.Users, userID) })
	return err == nil, err
}

// AddChannel stores c in the given tier, replacing an entry with the same id.
func (s *Store) AddChannel(tier Tier, c Channel) error {
	if c.ID == "" {
		return errors.New("empty channel id")
	}
	return s.mutate(func(d *Data) {
		if tier == TierRequired {
			d.RequiredChannels.Set(c)
			return
		}
		d.Channels.Set(c)
	})
}

// DeleteChannel removes id from the given tier. Deleting an unknown id is not
// an error; the bool reports whether anything was removed.
func (s *Store) DeleteChannel(tier Tier, id string) (bool, error) {
	var removed bool
	err := s.mutate(func(d *Data) {
		if tier == TierRequired {
			removed = d.RequiredChannels.Delete(id)
			return
		}
		removed = d.Channels.Delete(id)
	})
	return removed, err
}

func (s *Store) SetPostChannel(chatID int64) error {
	return s.mutate(func(d *Data) { d.PostChannel = &chatID })
}

func (s *Store) SetAmazonTag(tag string) error {
	return s.mutate(func(d *Data) { d.AmazonTag = tag })
}

func (s *Store) SetCuePublisherID(id string) error {
	return s.mutate(func(d *Data) { d.CuePublisherID = id })
}

func (s *Store) mutate(fn func(d *Data)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(fn)
}

func (s *Store) commitLocked(fn func(d *Data)) error {
	next := s.data.clone()
	fn(&next)
	if err := Save(s.path, next); err != nil {
		s.log.Error("persist config", zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.data = next
	return nil
}
