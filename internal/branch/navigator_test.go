package branch

import (
	"testing"

	"github.com/loom-engine/loom/internal/nodestore"
	"github.com/loom-engine/loom/pkg/types"
	"github.com/stretchr/testify/require"
)

// newTestStore builds a session with a single root node and a deterministic
// id generator (sequential integers) for predictable test assertions.
func newTestStore() (*nodestore.Store, *types.Session) {
	root := types.NewNode("root", types.RoleSystem, "system", 0)
	session := types.NewSession("s1", root, 0)
	n := 0
	idGen := func() string {
		n++
		return "n" + string(rune('0'+n))
	}
	clock := func() int64 { return int64(n) }
	return nodestore.New(session, idGen, clock), session
}

func TestActivePath(t *testing.T) {
	store, session := newTestStore()
	a, _, err := store.CreateChild("root", nodestore.NodeFields{Role: types.RoleUser, Content: "hi"})
	require.NoError(t, err)
	b, _, err := store.CreateChild(a.ID, nodestore.NodeFields{Role: types.RoleAssistant, Content: "hello"})
	require.NoError(t, err)
	session.ActiveLeafID = b.ID

	path, err := ActivePath(session)
	require.NoError(t, err)
	require.Len(t, path, 3)
	require.Equal(t, "root", path[0].ID)
	require.Equal(t, a.ID, path[1].ID)
	require.Equal(t, b.ID, path[2].ID)
}

func TestSwitchToAndSiblings(t *testing.T) {
	store, session := newTestStore()
	a, _, _ := store.CreateChild("root", nodestore.NodeFields{Role: types.RoleUser, Content: "u"})
	b1, _, _ := store.CreateChild(a.ID, nodestore.NodeFields{Role: types.RoleAssistant, Content: "b1"})
	b2, _, _ := store.CreateChild(a.ID, nodestore.NodeFields{Role: types.RoleAssistant, Content: "b2"})
	session.ActiveLeafID = b2.ID

	sibs, err := Siblings(session, b1.ID)
	require.NoError(t, err)
	require.Len(t, sibs, 2)
	require.Equal(t, b1.ID, sibs[0].ID)
	require.Equal(t, b2.ID, sibs[1].ID)

	require.NoError(t, SwitchTo(session, b1.ID))
	require.Equal(t, b1.ID, session.ActiveLeafID)
	require.Equal(t, b1.ID, session.Nodes[a.ID].LastSelectedChildID)

	// A subsequent switch back to the subtree restores the last-viewed leaf.
	require.NoError(t, SwitchTo(session, a.ID))
	require.Equal(t, b1.ID, session.ActiveLeafID)
}

func TestSwitchSiblingSaturates(t *testing.T) {
	store, session := newTestStore()
	a, _, _ := store.CreateChild("root", nodestore.NodeFields{Role: types.RoleUser, Content: "u"})
	b1, _, _ := store.CreateChild(a.ID, nodestore.NodeFields{Role: types.RoleAssistant, Content: "b1"})
	b2, _, _ := store.CreateChild(a.ID, nodestore.NodeFields{Role: types.RoleAssistant, Content: "b2"})
	session.ActiveLeafID = b1.ID

	require.NoError(t, SwitchSibling(session, b1.ID, DirPrev))
	require.Equal(t, b1.ID, session.ActiveLeafID, "no wraparound past the first sibling")

	require.NoError(t, SwitchSibling(session, b1.ID, DirNext))
	require.Equal(t, b2.ID, session.ActiveLeafID)

	require.NoError(t, SwitchSibling(session, b2.ID, DirNext))
	require.Equal(t, b2.ID, session.ActiveLeafID, "no wraparound past the last sibling")

	require.NoError(t, SwitchSibling(session, b2.ID, DirPrev))
	require.Equal(t, b1.ID, session.ActiveLeafID)
}

func TestEnsureValidActiveLeafRepairsDangling(t *testing.T) {
	store, session := newTestStore()
	a, _, _ := store.CreateChild("root", nodestore.NodeFields{Role: types.RoleUser, Content: "u"})
	b, _, _ := store.CreateChild(a.ID, nodestore.NodeFields{Role: types.RoleAssistant, Content: "b"})
	session.ActiveLeafID = b.ID

	session.ActiveLeafID = "gone"
	require.NoError(t, EnsureValidActiveLeaf(session))
	require.Equal(t, b.ID, session.ActiveLeafID)
}
