package durak

// dispatch validates an action fully before touching the session. Any applied
// action supersedes the pending timeout; the handlers re-arm as needed.
func (s *Session) dispatch(env Env, fx *Effects, sender string, action Action) error {
	if _, err := s.playerByAddr(sender); err != nil {
		return err
	}
	s.Awaiting, s.Deadline = "", 0

	switch a := action.(type) {
	case AttackAction:
		return s.attack(env, fx, sender, a.Cards, RoleAttacker)
	case CoAttackAction:
		return s.attack(env, fx, sender, a.Cards, RoleCoAttacker)
	case DefendAction:
		return s.defend(env, fx, sender, a.Card, a.Target)
	case ForwardAction:
		return s.forward(env, fx, sender, a.Card)
	case TakeAction:
		return s.take(env, fx, sender)
	case BeatedAction:
		return s.beated(env, fx, sender)
	default:
		return ErrInvalidAction.withf("%T", action)
	}
}

// claimCards checks the played slots against the hand and fills in every
// value already revealed. Unrevealed slots keep the sender's claim.
func (s *Session) claimCards(env Env, p *Player, cards []Card) ([]Card, error) {
	if len(cards) == 0 {
		return nil, ErrNoCards
	}
	revealed, err := s.revealed(env)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(cards))
	claimed := make([]Card, 0, len(cards))
	for _, c := range cards {
		if seen[c.Slot] {
			return nil, ErrDuplicateCard.withf("slot %d", c.Slot)
		}
		seen[c.Slot] = true
		if !p.HasSlot(c.Slot) {
			return nil, ErrInvalidCardIndex.withf("%s does not hold slot %d", p.Addr, c.Slot)
		}
		if v, ok := revealed[c.Slot]; ok {
			if c.Value != "" && c.Value != v {
				return nil, ErrCardMismatch.withf("slot %d is %s, not %s", c.Slot, v, c.Value)
			}
			c.Value = v
		} else if !ValidValue(c.Value) {
			return nil, ErrInvalidCardValue.withf("slot %d value %q", c.Slot, c.Value)
		}
		claimed = append(claimed, c)
	}
	return claimed, nil
}

func sameKind(cards []Card) bool {
	for _, c := range cards[1:] {
		if !c.SameKind(cards[0]) {
			return false
		}
	}
	return true
}

func (s *Session) attack(env Env, fx *Effects, sender string, raw []Card, role Role) error {
	ok, err := s.canAttack()
	if err != nil {
		return err
	}
	if !ok {
		return ErrCantAttack.withf("stage %s, %d of %d attacks", s.Stage, len(s.Attacks), s.Rules.AttackCapacity)
	}

	notHolder := ErrPlayerIsNotAttacker
	if role == RoleCoAttacker {
		notHolder = ErrPlayerIsNotCoAttacker
	}
	holder, err := s.playerByRole(role)
	if err != nil {
		if role == RoleCoAttacker {
			return notHolder.withf("%s", sender)
		}
		return err
	}
	if holder.Addr != sender {
		return notHolder.withf("%s", sender)
	}

	cards, err := s.claimCards(env, holder, raw)
	if err != nil {
		return err
	}
	switch role {
	case RoleAttacker:
		if len(s.Attacks) == 0 {
			if s.Rules.OneKindLead && !sameKind(cards) {
				return ErrNotValidAttackCard.withf("an opening attack uses one kind")
			}
			break
		}
		for _, c := range cards {
			if !s.Attacks.IsValidAttackCard(c) {
				return ErrNotValidAttackCard.withf("%s matches no card on the table", c)
			}
		}
	case RoleCoAttacker:
		if s.Rules.OneKindLead && !sameKind(cards) {
			return ErrNotValidAttackCard.withf("a co-attack uses one kind")
		}
		for _, c := range cards {
			if s.Attacks.IsValidAttackCard(c) {
				return ErrNotValidAttackCard.withf("%s repeats a kind on the table", c)
			}
		}
	default:
		return ErrInvalidAction.withf("attack as %s", role)
	}

	defender, err := s.playerByRole(RoleDefender)
	if err != nil {
		return err
	}
	if len(s.Attacks)+len(cards) > s.Rules.AttackCapacity || s.Attacks.Uncovered()+len(cards) > len(defender.Slots) {
		return ErrNoAttackSpace.withf("%d on table, %d uncovered, defender holds %d", len(s.Attacks), s.Attacks.Uncovered(), len(defender.Slots))
	}

	slots := make([]int, 0, len(cards))
	for _, c := range cards {
		if err := holder.TakeCard(c.Slot); err != nil {
			return err
		}
		s.Attacks = append(s.Attacks, NewAttack(c.Slot, c.Value, sender))
		slots = append(slots, c.Slot)
	}
	return s.revealOrUpdate(env, fx, slots)
}

func (s *Session) defend(env Env, fx *Effects, sender string, raw Card, target int) error {
	if s.Stage != StageActing {
		return ErrInvalidStage.withf("defend in %s", s.Stage)
	}
	defender, err := s.playerByRole(RoleDefender)
	if err != nil {
		return err
	}
	if defender.Addr != sender {
		return ErrPlayerIsNotDefender.withf("%s", sender)
	}
	if target < 0 || target >= len(s.Attacks) {
		return ErrInvalidAttackIndex.withf("%d of %d", target, len(s.Attacks))
	}
	cards, err := s.claimCards(env, defender, []Card{raw})
	if err != nil {
		return err
	}
	card := cards[0]
	trump, err := s.trump()
	if err != nil {
		return err
	}
	ok, err := s.Attacks[target].CanBeClosedBy(card, trump)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidDefendCard.withf("%s does not beat %s", card, s.Attacks[target].Open)
	}

	if err := defender.TakeCard(card.Slot); err != nil {
		return err
	}
	if err := s.Attacks[target].RequestClose(card, card.Value, sender); err != nil {
		return err
	}
	return s.revealOrUpdate(env, fx, []int{card.Slot})
}

// forward passes the defense on with a card of the kind already on the
// table. The forwarder attacks next and the following seat defends.
func (s *Session) forward(env Env, fx *Effects, sender string, raw Card) error {
	if s.Stage != StageActing {
		return ErrInvalidStage.withf("forward in %s", s.Stage)
	}
	defender, err := s.playerByRole(RoleDefender)
	if err != nil {
		return err
	}
	if defender.Addr != sender {
		return ErrPlayerIsNotDefender.withf("%s", sender)
	}
	kind, ok := s.Attacks.ForwardKind()
	if !ok {
		return ErrCantForward.withf("table must be uncovered cards of one kind")
	}
	cards, err := s.claimCards(env, defender, []Card{raw})
	if err != nil {
		return err
	}
	card := cards[0]
	if card.Kind() != kind {
		return ErrInvalidForwardCard.withf("%s against kind %c", card, kind)
	}
	if len(s.Attacks)+1 > s.Rules.AttackCapacity {
		return ErrNoAttackSpace.withf("%d on table", len(s.Attacks))
	}
	roles, err := s.nextRoles(false)
	if err != nil {
		return err
	}
	for _, p := range s.Players {
		if roles[p.Addr] == RoleDefender && len(p.Slots) < s.Attacks.Uncovered()+1 {
			return ErrCantForward.withf("%s cannot face %d cards", p.Addr, s.Attacks.Uncovered()+1)
		}
	}

	prev := s.snapshotRoles()
	if err := defender.TakeCard(card.Slot); err != nil {
		return err
	}
	entry := NewAttack(card.Slot, card.Value, sender)
	entry.Forwarded = true
	s.Attacks = append(s.Attacks, entry)
	s.applyRoles(roles)
	s.ForwardRoles = prev
	return s.revealOrUpdate(env, fx, []int{card.Slot})
}

func (s *Session) take(env Env, fx *Effects, sender string) error {
	if s.Stage != StageActing {
		return ErrInvalidStage.withf("take in %s", s.Stage)
	}
	defender, err := s.playerByRole(RoleDefender)
	if err != nil {
		return err
	}
	if defender.Addr != sender {
		return ErrPlayerIsNotDefender.withf("%s", sender)
	}
	if len(s.Attacks) == 0 {
		return ErrNoAttacks
	}
	if !s.Attacks.AllConfirmed() {
		return ErrUnconfirmedCard.withf("ledger has pending reveals")
	}
	if len(s.Attacks) < s.Rules.AttackCapacity {
		if err := s.moveTo(StageEndOfRound); err != nil {
			return err
		}
		return s.arm(env, fx, RoleDefender, s.Rules.EndOfRoundTimeout)
	}
	return s.endRound(env, fx, true)
}

// beated ends the round from the attacker's side. In Acting every card must
// be covered and the table is discarded; after a take it lets the defender
// collect without waiting out the timer.
func (s *Session) beated(env Env, fx *Effects, sender string) error {
	if s.Stage != StageActing && s.Stage != StageEndOfRound {
		return ErrInvalidStage.withf("beated in %s", s.Stage)
	}
	attacker, err := s.playerByRole(RoleAttacker)
	if err != nil {
		return err
	}
	if attacker.Addr != sender {
		return ErrPlayerIsNotAttacker.withf("%s", sender)
	}
	if len(s.Attacks) == 0 {
		return ErrNoAttacks
	}
	if !s.Attacks.AllConfirmed() {
		return ErrUnconfirmedCard.withf("ledger has pending reveals")
	}
	if s.Stage == StageEndOfRound {
		return s.endRound(env, fx, true)
	}
	if !s.Attacks.AllClosed() {
		return ErrUncoveredAttack
	}
	return s.endRound(env, fx, false)
}
