package rules

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "automation_rules.json")
	return NewStore(path, "admin@s.whatsapp.net", zap.NewNop()), path
}

func TestSeedsSampleRulesOnFirstUse(t *testing.T) {
	s, path := newTestStore(t)

	rules := s.Rules()
	if len(rules) != 2 {
		t.Fatalf("seeded %d rules, want 2", len(rules))
	}
	if rules[0].Name != "Auto-Reply to Hello" {
		t.Errorf("first rule = %q", rules[0].Name)
	}
	if rules[1].Actions[0].Destination != "admin@s.whatsapp.net" {
		t.Errorf("forward destination = %q", rules[1].Actions[0].Destination)
	}

	// The seeds must have been persisted.
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}
}

func TestAddUpdateDelete(t *testing.T) {
	s, _ := newTestStore(t)
	for _, r := range s.Rules() {
		s.Delete(r.ID)
	}

	id := s.Add(Rule{
		Name:           "Log everything",
		TriggerType:    TriggerMessageText,
		TriggerPattern: ".*",
		Actions:        []Action{{Type: ActionLog}},
		IsActive:       true,
	})
	if id == "" {
		t.Fatal("Add returned empty id")
	}

	updated := Rule{
		ID:             "ignored-replacement-id",
		Name:           "Log urgent only",
		TriggerType:    TriggerMessageText,
		TriggerPattern: "urgent",
		Actions:        []Action{{Type: ActionLog, File: "urgent.txt"}},
		IsActive:       true,
	}
	if !s.Update(id, updated) {
		t.Fatal("Update returned false for existing id")
	}
	got := s.Rules()
	if len(got) != 1 || got[0].Name != "Log urgent only" {
		t.Fatalf("after update: %+v", got)
	}
	if got[0].ID != id {
		t.Errorf("update changed rule id to %q", got[0].ID)
	}

	if s.Update("missing", updated) {
		t.Error("Update returned true for unknown id")
	}
	if s.Delete("missing") {
		t.Error("Delete returned true for unknown id")
	}
	if len(s.Rules()) != 1 {
		t.Error("failed mutations changed the store")
	}

	if !s.Delete(id) {
		t.Fatal("Delete returned false for existing id")
	}
	if len(s.Rules()) != 0 {
		t.Errorf("store not empty after delete: %+v", s.Rules())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, path := newTestStore(t)
	s.Add(Rule{
		Name:           "Group watcher",
		TriggerType:    TriggerGroup,
		TriggerPattern: "team@g.us",
		Actions: []Action{
			{Type: ActionReply, Text: "ack"},
			{Type: ActionForward, Destination: "boss@s.whatsapp.net"},
			{Type: ActionLog, File: "team.txt"},
		},
		IsActive: false,
	})

	reloaded := NewStore(path, "admin@s.whatsapp.net", zap.NewNop())
	if !reflect.DeepEqual(s.Rules(), reloaded.Rules()) {
		t.Errorf("round trip mismatch:\n  saved:    %+v\n  reloaded: %+v", s.Rules(), reloaded.Rules())
	}
}

func TestSnapshotLayout(t *testing.T) {
	_, path := newTestStore(t)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("snapshot is not a JSON rule list: %v", err)
	}
	for _, key := range []string{"id", "name", "trigger_type", "trigger_pattern", "actions", "is_active"} {
		if _, ok := records[0][key]; !ok {
			t.Errorf("snapshot record missing %q field", key)
		}
	}
}

func TestLoadFailureFallsBackToSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automation_rules.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, "admin@s.whatsapp.net", zap.NewNop())
	if len(s.Rules()) != 2 {
		t.Errorf("corrupt snapshot: got %d rules, want 2 samples", len(s.Rules()))
	}
}

func TestSaveFailureKeepsMemoryAuthoritative(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "automation_rules.json")
	s := NewStore(path, "admin@s.whatsapp.net", zap.NewNop())

	// Make the snapshot directory unwritable so the next save fails.
	if err := os.Chmod(dir, 0500); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(dir, 0700) })

	id := s.Add(Rule{Name: "kept in memory", TriggerType: TriggerMessageText, TriggerPattern: "x", IsActive: true})

	found := false
	for _, r := range s.Rules() {
		if r.ID == id {
			found = true
		}
	}
	if !found {
		t.Error("rule lost from memory after save failure")
	}
}
