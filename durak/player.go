package durak

import "sort"

type Player struct {
	Addr     string `json:"addr"`
	Position int    `json:"position"`
	Slots    []int  `json:"slots"`
	Role     Role   `json:"role"`
	Rank     *int   `json:"rank,omitempty"`
}

func (p *Player) Ranked() bool {
	return p.Rank != nil
}

func (p *Player) HasSlot(slot int) bool {
	for _, s := range p.Slots {
		if s == slot {
			return true
		}
	}
	return false
}

// TakeCard removes slot from the hand.
func (p *Player) TakeCard(slot int) error {
	for i, s := range p.Slots {
		if s == slot {
			p.Slots = append(p.Slots[:i], p.Slots[i+1:]...)
			return nil
		}
	}
	return ErrInvalidCardIndex.withf("%s does not hold slot %d", p.Addr, slot)
}

func (p *Player) AddSlots(slots ...int) {
	p.Slots = append(p.Slots, slots...)
	sort.Ints(p.Slots)
}

func (p *Player) clone() *Player {
	c := *p
	c.Slots = append([]int(nil), p.Slots...)
	if p.Rank != nil {
		r := *p.Rank
		c.Rank = &r
	}
	return &c
}

func (s *Session) playerByAddr(addr string) (*Player, error) {
	for _, p := range s.Players {
		if p.Addr == addr {
			return p, nil
		}
	}
	return nil, ErrPlayerNotFound.withf("%s", addr)
}

func (s *Session) playerByRole(role Role) (*Player, error) {
	for _, p := range s.Players {
		if p.Role == role {
			return p, nil
		}
	}
	return nil, ErrNoPlayerFoundByRole.withf("%s", role)
}

func (s *Session) hasRole(role Role) bool {
	_, err := s.playerByRole(role)
	return err == nil
}

// actingOrder rotates the seat list so the player at position from is first.
func (s *Session) actingOrder(from int) []*Player {
	seats := s.Rules.MaxSeats
	order := append([]*Player(nil), s.Players...)
	key := func(p *Player) int {
		return ((p.Position-from)%seats + seats) % seats
	}
	sort.SliceStable(order, func(i, j int) bool {
		return key(order[i]) < key(order[j])
	})
	return order
}

// rankOrder lists finished players by rank, then everyone else in seat order.
func (s *Session) rankOrder() []*Player {
	order := append([]*Player(nil), s.Players...)
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		switch {
		case a.Ranked() && b.Ranked():
			return *a.Rank < *b.Rank
		case a.Ranked():
			return true
		default:
			return false
		}
	})
	return order
}

func (s *Session) unranked() int {
	n := 0
	for _, p := range s.Players {
		if !p.Ranked() {
			n++
		}
	}
	return n
}

// initRoles deals roles by seat from seat 0.
func (s *Session) initRoles() error {
	if len(s.Players) == 0 {
		return ErrEmptyPlayers
	}
	for i, p := range s.Players {
		p.Role = RoleNone
		if i < len(seatRoles) {
			p.Role = seatRoles[i]
		}
	}
	return nil
}

// nextRoles computes the roles for the next round without applying them.
// A taken round skips the defender: the turn passes to the co-attacker, or
// back to the attacker when nobody holds that role. A defended round hands
// the attack to the defender.
func (s *Session) nextRoles(taken bool) (map[string]Role, error) {
	from := RoleDefender
	if taken {
		from = RoleAttacker
		if s.hasRole(RoleCoAttacker) {
			from = RoleCoAttacker
		}
	}
	holder, err := s.playerByRole(from)
	if err != nil {
		return nil, err
	}

	roles := make(map[string]Role, len(s.Players))
	i := 0
	for _, p := range s.actingOrder(holder.Position) {
		roles[p.Addr] = RoleNone
		if p.Ranked() {
			continue
		}
		if i < len(seatRoles) {
			roles[p.Addr] = seatRoles[i]
		}
		i++
	}
	return roles, nil
}

func (s *Session) applyRoles(roles map[string]Role) {
	for _, p := range s.Players {
		p.Role = roles[p.Addr]
	}
}

func (s *Session) rotateRoles(taken bool) error {
	roles, err := s.nextRoles(taken)
	if err != nil {
		return err
	}
	s.applyRoles(roles)
	return nil
}

func (s *Session) snapshotRoles() map[string]Role {
	roles := make(map[string]Role, len(s.Players))
	for _, p := range s.Players {
		roles[p.Addr] = p.Role
	}
	return roles
}

// updateFinished ranks every empty handed player once the deck is gone,
// scanning from the attacker. A player whose card still waits on a reveal
// is ranked once it confirms.
func (s *Session) updateFinished() error {
	if !s.deckExhausted() {
		return nil
	}
	attacker, err := s.playerByRole(RoleAttacker)
	if err != nil {
		return err
	}
	for _, p := range s.actingOrder(attacker.Position) {
		if p.Ranked() || len(p.Slots) > 0 || s.Attacks.AwaitsReveal(p.Addr) {
			continue
		}
		rank := s.Finished
		p.Rank = &rank
		s.Finished++
	}
	return nil
}
