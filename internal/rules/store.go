package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store holds the ordered rule set and persists a full snapshot to a
// JSON file on every mutation. A load failure degrades to the seeded
// sample rules; a save failure is logged and the in-memory rules stay
// authoritative until the next successful save.
type Store struct {
	mu        sync.Mutex
	rules     []Rule
	path      string
	adminDest string
	logger    *zap.Logger
}

// NewStore opens the rule snapshot at path, seeding and persisting the
// sample rules when no snapshot exists yet. adminDest is the forward
// destination used by the seeded forward rule.
func NewStore(path, adminDest string, logger *zap.Logger) *Store {
	s := &Store{
		path:      path,
		adminDest: adminDest,
		logger:    logger,
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.rules = sampleRules(s.adminDest)
		if err := s.save(); err != nil {
			s.logger.Warn("failed to persist seeded rules", zap.Error(err))
		}
		return
	}
	if err != nil {
		s.logger.Error("failed to read rule snapshot, using sample rules", zap.Error(err))
		s.rules = sampleRules(s.adminDest)
		return
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		s.logger.Error("failed to parse rule snapshot, using sample rules", zap.Error(err))
		s.rules = sampleRules(s.adminDest)
		return
	}
	s.rules = rules
}

// save writes the full snapshot. Caller must hold s.mu (or be the
// constructor). The write goes through a temp file and rename so a
// crash never leaves a partial snapshot behind.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.rules, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create rules dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write rule snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace rule snapshot: %w", err)
	}
	return nil
}

// Rules returns a copy of the ordered rule set.
func (s *Store) Rules() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Add appends a rule, assigning an id when absent, persists the
// snapshot and returns the rule id.
func (s *Store) Add(r Rule) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.rules = append(s.rules, r)
	if err := s.save(); err != nil {
		s.logger.Error("failed to save rules after add", zap.Error(err))
	}
	return r.ID
}

// Update replaces the first rule with the given id. Returns false and
// leaves the store unchanged when no rule matches. The stored rule
// keeps the original id regardless of what the replacement carries.
func (s *Store) Update(id string, r Rule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			r.ID = id
			s.rules[i] = r
			if err := s.save(); err != nil {
				s.logger.Error("failed to save rules after update", zap.Error(err))
			}
			return true
		}
	}
	return false
}

// Delete removes the first rule with the given id. Returns false when
// no rule matches.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			if err := s.save(); err != nil {
				s.logger.Error("failed to save rules after delete", zap.Error(err))
			}
			return true
		}
	}
	return false
}

// sampleRules returns the two default rules seeded on first use.
func sampleRules(adminDest string) []Rule {
	return []Rule{
		{
			ID:             uuid.NewString(),
			Name:           "Auto-Reply to Hello",
			TriggerType:    TriggerMessageText,
			TriggerPattern: `^(hello|hi|hey)$`,
			Actions: []Action{{
				Type: ActionReply,
				Text: "Hello! This is an automated response from wabridge.",
			}},
			IsActive: true,
		},
		{
			ID:             uuid.NewString(),
			Name:           "Forward Important Messages",
			TriggerType:    TriggerMessageText,
			TriggerPattern: `\b(urgent|important)\b`,
			Actions: []Action{{
				Type:        ActionForward,
				Destination: adminDest,
			}},
			IsActive: true,
		},
	}
}
