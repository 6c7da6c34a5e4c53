package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDetachedSession builds a session over an in-memory pipe with no
// handler goroutine attached; only registry bookkeeping is exercised.
func newDetachedSession() *Session {
	_, serverConn := net.Pipe()
	return newSession(newTCPLineConn(serverConn), 4*time.Second, 49)
}

func TestRegistryAddRemove(t *testing.T) {
	r := NewRegistry()
	sess := newDetachedSession()

	r.Add(sess)
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)

	assert.True(t, r.Remove(sess.ID))
	assert.Equal(t, 0, r.Count())

	// Second removal reports absence so racing teardown paths can tell.
	assert.False(t, r.Remove(sess.ID))
}

func TestRegistryFindByName(t *testing.T) {
	r := NewRegistry()
	sess := newDetachedSession()
	sess.DisplayName = "alice"
	r.Add(sess)

	byName, ok := r.FindByName("alice")
	require.True(t, ok)
	assert.Same(t, sess, byName)

	byID, ok := r.FindByName(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, byID)

	_, ok = r.FindByName("nobody")
	assert.False(t, ok)
}

func TestRegistryAdminBinding(t *testing.T) {
	r := NewRegistry()
	sess := newDetachedSession()
	r.Add(sess)

	assert.False(t, r.IsAdmin(sess))

	// Binding alone is not enough: the admin flag must also be set.
	r.BindAdmin(sess.ID)
	assert.False(t, r.IsAdmin(sess))

	sess.Permissions.Elevate()
	assert.True(t, r.IsAdmin(sess))

	// The flag alone is not enough either.
	other := newDetachedSession()
	other.Permissions.Elevate()
	r.Add(other)
	assert.False(t, r.IsAdmin(other))
}

func TestRegistryRemoveClearsAdminBinding(t *testing.T) {
	r := NewRegistry()
	sess := newDetachedSession()
	sess.Permissions.Elevate()
	r.Add(sess)
	r.BindAdmin(sess.ID)

	require.True(t, r.Remove(sess.ID))

	// Re-adding the same session must not resurrect the binding.
	r.Add(sess)
	assert.False(t, r.IsAdmin(sess))
}

func TestRegistryReceivers(t *testing.T) {
	r := NewRegistry()
	sender := newDetachedSession()
	listener := newDetachedSession()
	deaf := newDetachedSession()
	deaf.Permissions.Set("receive", false)

	r.Add(sender)
	r.Add(listener)
	r.Add(deaf)

	recipients := r.Receivers(sender.ID)
	require.Len(t, recipients, 1)
	assert.Same(t, listener, recipients[0])
}

func TestRegistryMessageTotal(t *testing.T) {
	r := NewRegistry()
	a := newDetachedSession()
	b := newDetachedSession()
	a.msgTotal.Store(3)
	b.msgTotal.Store(4)

	r.Add(a)
	r.Add(b)

	assert.Equal(t, int64(7), r.MessageTotal())
}
