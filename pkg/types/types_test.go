package types

import (
	"encoding/json"
	"testing"
)

func TestNode_JSON(t *testing.T) {
	n := NewNode("node-1", RoleUser, "hello", 1700000000000)
	n.ParentID = "root"
	n.ChildrenIDs = []string{"node-2"}

	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded Node
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Role != RoleUser {
		t.Errorf("Role mismatch: got %s, want %s", decoded.Role, RoleUser)
	}
	if decoded.Content != "hello" {
		t.Errorf("Content mismatch: got %s", decoded.Content)
	}
	if len(decoded.ChildrenIDs) != 1 || decoded.ChildrenIDs[0] != "node-2" {
		t.Errorf("ChildrenIDs mismatch: got %v", decoded.ChildrenIDs)
	}
}

func TestNode_RootHasNoParentID(t *testing.T) {
	root := NewNode("root", RoleSystem, "You are helpful.", 0)
	data, _ := json.Marshal(root)

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map failed: %v", err)
	}
	if _, ok := raw["parentId"]; ok {
		t.Error("parentId should be omitted for the root node")
	}
}

func TestDepthRange_Contains(t *testing.T) {
	tests := []struct {
		name  string
		r     DepthRange
		depth int
		want  bool
	}{
		{"unbounded above min", DepthRange{Min: 0, Max: -1}, 1000, true},
		{"below min", DepthRange{Min: 2, Max: -1}, 1, false},
		{"within closed range", DepthRange{Min: 0, Max: 3}, 3, true},
		{"above closed range", DepthRange{Min: 0, Max: 3}, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Contains(tt.depth); got != tt.want {
				t.Errorf("Contains(%d) = %v, want %v", tt.depth, got, tt.want)
			}
		})
	}
}

func TestHistoryEntry_SnapshotRoundTrip(t *testing.T) {
	entry := HistoryEntry{
		Kind:      EntrySnapshot,
		ActionTag: ActionInitialState,
		Timestamp: 1700000000000,
		Snapshot: map[string]*Node{
			"root": NewNode("root", RoleSystem, "sys", 0),
		},
	}

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded HistoryEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Kind != EntrySnapshot {
		t.Errorf("Kind mismatch: got %s", decoded.Kind)
	}
	if decoded.Snapshot["root"].Role != RoleSystem {
		t.Error("Snapshot node not preserved")
	}
}

func TestRelationChange_JSON(t *testing.T) {
	rc := RelationChange{
		NodeID:      "c1",
		OldParentID: "p1",
		NewParentID: "p2",
		AffectedParents: map[string]ChildrenDelta{
			"p1": {OldChildren: []string{"c1"}, NewChildren: []string{}},
			"p2": {OldChildren: []string{}, NewChildren: []string{"c1"}},
		},
	}
	data, err := json.Marshal(rc)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded RelationChange
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.AffectedParents["p2"].NewChildren[0] != "c1" {
		t.Error("AffectedParents not preserved")
	}
}
