// Package server implements capability flags that gate what a connected
// session is allowed to do.
package server

import "sync"

// permissionNames lists every capability flag in the order used when
// printing a permission listing to a client.
var permissionNames = []string{
	"read",
	"write",
	"execute",
	"admin",
	"send",
	"receive",
	"broadcast",
	"configure",
	"monitor",
	"log",
	"manageConnections",
	"controlDevices",
}

// PermissionSet is a bundle of independent capability flags attached to a
// session. Flags have no hierarchy; each is checked on its own at the point
// of use. The set is mutated by admin commands while other goroutines read
// it, so all access goes through the internal mutex.
type PermissionSet struct {
	mu    sync.RWMutex
	flags map[string]bool
}

// NewPermissionSet creates a set with every flag false except the given ones.
func NewPermissionSet(granted ...string) *PermissionSet {
	p := &PermissionSet{flags: make(map[string]bool, len(permissionNames))}
	for _, name := range permissionNames {
		p.flags[name] = false
	}
	for _, name := range granted {
		if _, ok := p.flags[name]; ok {
			p.flags[name] = true
		}
	}
	return p
}

// defaultPermissions returns the set granted to every new session.
func defaultPermissions() *PermissionSet {
	return NewPermissionSet("send", "receive", "broadcast")
}

// Set updates a single flag by name. Unknown names are ignored and reported
// via the return value.
func (p *PermissionSet) Set(name string, value bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.flags[name]; !ok {
		return false
	}
	p.flags[name] = value
	return true
}

// Has reports whether the named flag is set. Unknown names are false.
func (p *PermissionSet) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.flags[name]
}

// Elevate turns every flag on. Used when a session logs in as admin.
func (p *PermissionSet) Elevate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name := range p.flags {
		p.flags[name] = true
	}
}

// Send reports whether the session may send chat messages.
func (p *PermissionSet) Send() bool { return p.Has("send") }

// Receive reports whether the session is eligible to receive broadcasts.
func (p *PermissionSet) Receive() bool { return p.Has("receive") }

// Broadcast reports whether the session may issue @broadcast.
func (p *PermissionSet) Broadcast() bool { return p.Has("broadcast") }

// Admin reports whether the admin flag is set. Flag possession alone does
// not authorize server commands; see Registry.IsAdmin.
func (p *PermissionSet) Admin() bool { return p.Has("admin") }

// Flag is one named capability with its current value, used for listings.
type Flag struct {
	Name  string
	Value bool
}

// List returns all flags in stable order.
func (p *PermissionSet) List() []Flag {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Flag, 0, len(permissionNames))
	for _, name := range permissionNames {
		out = append(out, Flag{Name: name, Value: p.flags[name]})
	}
	return out
}
