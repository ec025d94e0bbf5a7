package room

// Player is keyed by Name for its whole life in a room. ID is the current
// connection and changes on every reconnect.
type Player struct {
	ID        string
	Name      string
	Score     int
	Connected bool
	Submitted bool
	Hand      []string
}

// Roster is the ordered player registry of one room. Iteration order is join
// order and players are never removed, so positions are stable for judge
// rotation. Not safe for concurrent use; the owning room serializes access.
type Roster struct {
	players []*Player
}

// AddOrRestore appends a new player for an unseen name, or rebinds the existing
// one to connID and marks it connected. restored reports which case happened.
func (r *Roster) AddOrRestore(name, connID string) (p *Player, restored bool) {
	if p, _ := r.ByName(name); p != nil {
		p.ID = connID
		p.Connected = true
		return p, true
	}
	p = &Player{ID: connID, Name: name, Connected: true}
	r.players = append(r.players, p)
	return p, false
}

// ByConnection finds the player currently bound to connID.
func (r *Roster) ByConnection(connID string) (*Player, int) {
	if connID == "" {
		return nil, -1
	}
	for i, p := range r.players {
		if p.ID == connID {
			return p, i
		}
	}
	return nil, -1
}

func (r *Roster) ByName(name string) (*Player, int) {
	for i, p := range r.players {
		if p.Name == name {
			return p, i
		}
	}
	return nil, -1
}

// MarkDisconnected flags the player bound to connID; it stays in the roster.
func (r *Roster) MarkDisconnected(connID string) (*Player, int) {
	p, i := r.ByConnection(connID)
	if p == nil || !p.Connected {
		return nil, -1
	}
	p.Connected = false
	return p, i
}

func (r *Roster) At(i int) *Player {
	if i < 0 || i >= len(r.players) {
		return nil
	}
	return r.players[i]
}

func (r *Roster) Len() int {
	return len(r.players)
}

func (r *Roster) ConnectedCount() int {
	n := 0
	for _, p := range r.players {
		if p.Connected {
			n++
		}
	}
	return n
}

func (r *Roster) Connected() []*Player {
	var out []*Player
	for _, p := range r.players {
		if p.Connected {
			out = append(out, p)
		}
	}
	return out
}

func (r *Roster) All() []*Player {
	return r.players
}
