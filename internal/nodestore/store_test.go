package nodestore

import (
	"strconv"
	"testing"

	"github.com/loom-engine/loom/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*Store, *types.Session) {
	root := types.NewNode("root", types.RoleSystem, "system", 0)
	session := types.NewSession("s1", root, 0)
	n := 0
	idGen := func() string {
		n++
		return "n" + strconv.Itoa(n)
	}
	clock := func() int64 { return int64(n) }
	return New(session, idGen, clock), session
}

func TestCreateChildAppendsRightmost(t *testing.T) {
	s, session := newTestStore()
	a, rel, err := s.CreateChild("root", NodeFields{Role: types.RoleUser, Content: "hi"})
	require.NoError(t, err)
	require.Equal(t, "root", a.ParentID)
	require.Equal(t, []string{a.ID}, session.Nodes["root"].ChildrenIDs)
	require.Equal(t, a.ID, rel.NodeID)
	require.NoError(t, CheckInvariants(session))

	b, _, err := s.CreateChild("root", NodeFields{Role: types.RoleUser, Content: "second"})
	require.NoError(t, err)
	require.Equal(t, []string{a.ID, b.ID}, session.Nodes["root"].ChildrenIDs)
}

func TestCreateChildMissingParent(t *testing.T) {
	s, _ := newTestStore()
	_, _, err := s.CreateChild("missing", NodeFields{Role: types.RoleUser})
	require.ErrorIs(t, err, types.ErrNodeNotFound)
}

func TestUpdateContentReturnsPreviousAndFinal(t *testing.T) {
	s, _ := newTestStore()
	a, _, _ := s.CreateChild("root", NodeFields{Role: types.RoleUser, Content: "hi"})

	newContent := "edited"
	prev, final, err := s.UpdateContent(a.ID, ContentUpdate{Content: &newContent})
	require.NoError(t, err)
	require.Equal(t, "hi", prev.Content)
	require.Equal(t, "edited", final.Content)
}

func TestDetachAttachMovesSubtree(t *testing.T) {
	s, session := newTestStore()
	a, _, _ := s.CreateChild("root", NodeFields{Role: types.RoleUser})
	b, _, _ := s.CreateChild("root", NodeFields{Role: types.RoleUser})
	c, _, _ := s.CreateChild(a.ID, NodeFields{Role: types.RoleAssistant})

	_, err := s.Detach(c.ID)
	require.NoError(t, err)
	require.Empty(t, session.Nodes[a.ID].ChildrenIDs)

	_, err = s.Attach(c.ID, b.ID, -1)
	require.NoError(t, err)
	require.Equal(t, []string{c.ID}, session.Nodes[b.ID].ChildrenIDs)
	require.Equal(t, b.ID, session.Nodes[c.ID].ParentID)
	require.NoError(t, CheckInvariants(session))
}

func TestAttachRejectsCycle(t *testing.T) {
	s, _ := newTestStore()
	a, _, _ := s.CreateChild("root", NodeFields{Role: types.RoleUser})
	b, _, _ := s.CreateChild(a.ID, NodeFields{Role: types.RoleAssistant})

	_, err := s.Detach(a.ID)
	require.NoError(t, err)

	_, err = s.Attach(a.ID, b.ID, -1)
	require.ErrorIs(t, err, types.ErrCycleWouldBeCreated)
}

func TestDetachRootFails(t *testing.T) {
	s, _ := newTestStore()
	_, err := s.Detach("root")
	require.ErrorIs(t, err, types.ErrInvalidMutation)
}

func TestDeleteSubtreeRemovesDescendants(t *testing.T) {
	s, session := newTestStore()
	a, _, _ := s.CreateChild("root", NodeFields{Role: types.RoleUser})
	b, _, _ := s.CreateChild(a.ID, NodeFields{Role: types.RoleAssistant})
	c, _, _ := s.CreateChild(b.ID, NodeFields{Role: types.RoleUser})

	removed, rel, err := s.DeleteSubtree(a.ID)
	require.NoError(t, err)
	require.Len(t, removed, 3)
	require.Equal(t, a.ID, removed[0].ID)
	require.Equal(t, "root", rel.OldParentID)
	_, ok := session.Nodes[a.ID]
	require.False(t, ok)
	_, ok = session.Nodes[b.ID]
	require.False(t, ok)
	_, ok = session.Nodes[c.ID]
	require.False(t, ok)
	require.Empty(t, session.Nodes["root"].ChildrenIDs)
	require.NoError(t, CheckInvariants(session))
}

func TestDeleteSubtreeRootFails(t *testing.T) {
	s, _ := newTestStore()
	_, _, err := s.DeleteSubtree("root")
	require.ErrorIs(t, err, types.ErrInvalidMutation)
}

func TestSetEnabledToggles(t *testing.T) {
	s, session := newTestStore()
	a, _, _ := s.CreateChild("root", NodeFields{Role: types.RoleUser})
	require.True(t, session.Nodes[a.ID].IsEnabled)

	prev, final, err := s.SetEnabled(a.ID, false)
	require.NoError(t, err)
	require.True(t, prev.IsEnabled)
	require.False(t, final.IsEnabled)
	require.False(t, session.Nodes[a.ID].IsEnabled)
}

func TestCheckInvariantsCatchesDanglingActiveLeaf(t *testing.T) {
	_, session := newTestStore()
	session.ActiveLeafID = "missing"
	require.Error(t, CheckInvariants(session))
}
