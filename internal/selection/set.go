// Package selection tracks which pending ids an operator has marked for a
// bulk action. A set lives per operator session and is pruned against every
// refreshed listing so it can never reference an id that left the view.
package selection

// Set is an unordered collection of entry ids. The zero value is not usable;
// construct with NewSet.
type Set struct {
	members map[string]struct{}
}

// NewSet builds a Set from any initial ids.
func NewSet(ids ...string) *Set {
	s := &Set{members: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		if id != "" {
			s.members[id] = struct{}{}
		}
	}
	return s
}

// Toggle flips membership of one id and reports whether it is now selected.
func (s *Set) Toggle(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := s.members[id]; ok {
		delete(s.members, id)
		return false
	}
	s.members[id] = struct{}{}
	return true
}

// ToggleAll implements the header checkbox: when every visible id is already
// selected the set empties, otherwise it becomes exactly the visible ids.
// Prior members outside the visible list are dropped either way.
func (s *Set) ToggleAll(visible []string) {
	if s.AllSelected(visible) {
		s.Clear()
		return
	}
	s.members = make(map[string]struct{}, len(visible))
	for _, id := range visible {
		if id != "" {
			s.members[id] = struct{}{}
		}
	}
}

// Prune drops every member not present in the refreshed listing.
func (s *Set) Prune(visible []string) {
	keep := make(map[string]struct{}, len(visible))
	for _, id := range visible {
		keep[id] = struct{}{}
	}
	for id := range s.members {
		if _, ok := keep[id]; !ok {
			delete(s.members, id)
		}
	}
}

// Clear empties the set.
func (s *Set) Clear() {
	s.members = make(map[string]struct{})
}

// Has reports membership.
func (s *Set) Has(id string) bool {
	_, ok := s.members[id]
	return ok
}

// Len is the member count.
func (s *Set) Len() int { return len(s.members) }

// IDs returns the members in unspecified order.
func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	return out
}

// AllSelected reports whether every visible id is a member. An empty visible
// list never counts as fully selected.
func (s *Set) AllSelected(visible []string) bool {
	if len(visible) == 0 {
		return false
	}
	for _, id := range visible {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// SomeSelected reports a partial selection: at least one visible id is a
// member, but not every one of them. Members outside the visible list do
// not count.
func (s *Set) SomeSelected(visible []string) bool {
	if s.AllSelected(visible) {
		return false
	}
	for _, id := range visible {
		if s.Has(id) {
			return true
		}
	}
	return false
}
