package realtime

import (
	"fmt"
	"sync"
)

// GroupBroadcast is the distinguished group that holds every open connection.
// Binding each accepted connection to it keeps broadcast fan-out on the same
// lookup path as targeted fan-out instead of a separate code branch.
const GroupBroadcast = "broadcast"

// UserGroup returns the self group name for a user id.
func UserGroup(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// Directory maps logical recipient groups to the set of live connections
// bound to them. Pure runtime state: it starts empty on every process start
// and is mutated only through Bind/UnbindAll.
type Directory struct {
	mu     sync.RWMutex
	groups map[string]map[string]struct{}
	conns  map[string]map[string]struct{} // reverse index for O(1) UnbindAll
}

// NewDirectory constructs an empty connection directory.
func NewDirectory() *Directory {
	return &Directory{
		groups: make(map[string]map[string]struct{}),
		conns:  make(map[string]map[string]struct{}),
	}
}

// Bind adds the connection to the group's member set. Idempotent.
func (d *Directory) Bind(connectionID, group string) {
	if connectionID == "" || group == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.groups[group] == nil {
		d.groups[group] = make(map[string]struct{})
	}
	d.groups[group][connectionID] = struct{}{}

	if d.conns[connectionID] == nil {
		d.conns[connectionID] = make(map[string]struct{})
	}
	d.conns[connectionID][group] = struct{}{}
}

// Unbind removes the connection from a single group.
func (d *Directory) Unbind(connectionID, group string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.removeLocked(connectionID, group)
}

// UnbindAll removes the connection from every group it belongs to. Used on
// disconnect; calling it for an unknown connection is a no-op.
func (d *Directory) UnbindAll(connectionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for group := range d.conns[connectionID] {
		d.removeLocked(connectionID, group)
	}
}

func (d *Directory) removeLocked(connectionID, group string) {
	if members := d.groups[group]; members != nil {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(d.groups, group)
		}
	}
	if groups := d.conns[connectionID]; groups != nil {
		delete(groups, group)
		if len(groups) == 0 {
			delete(d.conns, connectionID)
		}
	}
}

// MembersOf returns a snapshot of the connection ids bound to the group.
func (d *Directory) MembersOf(group string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	members := d.groups[group]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

// Groups returns a snapshot of the groups the connection belongs to.
func (d *Directory) Groups(connectionID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	groups := d.conns[connectionID]
	out := make([]string, 0, len(groups))
	for group := range groups {
		out = append(out, group)
	}
	return out
}

// Contains reports whether the connection is bound to the group.
func (d *Directory) Contains(connectionID, group string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.groups[group][connectionID]
	return ok
}

// Count returns the number of currently bound connections.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.conns)
}
