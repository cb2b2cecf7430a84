package hub

import "github.com/BioHazard786/meshcall/internal/protocol"

// Room is a named set of clients, ordered by join time.
type Room struct {
	ID      string
	members []*Client
}

func newRoom(id string) *Room {
	return &Room{ID: id}
}

// Len returns the number of members.
func (r *Room) Len() int {
	return len(r.members)
}

// Full reports whether the room is at capacity.
func (r *Room) Full() bool {
	return len(r.members) >= protocol.RoomCapacity
}

func (r *Room) add(c *Client) {
	r.members = append(r.members, c)
}

func (r *Room) remove(c *Client) bool {
	for i, m := range r.members {
		if m == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// others returns every member except c.
func (r *Room) others(c *Client) []*Client {
	out := make([]*Client, 0, len(r.members))
	for _, m := range r.members {
		if m != c {
			out = append(out, m)
		}
	}
	return out
}

// peers snapshots the current membership.
func (r *Room) peers() []protocol.PeerInfo {
	out := make([]protocol.PeerInfo, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, protocol.PeerInfo{ID: m.ID, DisplayName: m.DisplayName})
	}
	return out
}
