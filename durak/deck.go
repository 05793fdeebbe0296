package durak

// initShuffle asks the randomness service for a fresh deck. The engine picks
// the handle so replays allocate the same ids.
func (s *Session) initShuffle(fx *Effects) error {
	if s.Stage != StageShuffling {
		return ErrInvalidStage.withf("game start in %s", s.Stage)
	}
	s.RandomID++
	fx.Shuffle = &Shuffle{Handle: s.RandomID, Options: StandardDeck(s.Rules.DeckSize)}
	fx.setJoinable(false)
	return nil
}

func (s *Session) revealTrump(fx *Effects) error {
	if s.Stage != StageShuffling {
		return ErrInvalidStage.withf("shuffle ready in %s", s.Stage)
	}
	if err := s.moveTo(StageRevealingTrump); err != nil {
		return err
	}
	fx.Reveals = append(fx.Reveals, Reveal{Handle: s.RandomID, Slots: []int{s.Rules.TrumpSlot()}})
	return s.initRoles()
}

func (s *Session) revealReady(env Env, fx *Effects) error {
	switch s.Stage {
	case StageRevealingTrump:
		if err := s.updateTrump(env); err != nil {
			return err
		}
		return s.deal(fx)
	case StageDealing:
		return s.askToAct(env, fx)
	case StageActing, StageEndOfRound:
		return s.updateAttacks(env, fx)
	case StageEndOfGame:
		// cards dealt by the round that ended the game
		return nil
	case StageWaiting, StageShuffling:
		return ErrInvalidStage.withf("reveal ready in %s", s.Stage)
	default:
		return ErrInvalidStage.withf("unknown stage %d", int(s.Stage))
	}
}

func (s *Session) updateTrump(env Env) error {
	revealed, err := s.revealed(env)
	if err != nil {
		return err
	}
	slot := s.Rules.TrumpSlot()
	value, ok := revealed[slot]
	if !ok || !ValidValue(value) {
		return ErrTrumpNotRevealed.withf("slot %d", slot)
	}
	s.Trump = &Card{Slot: slot, Value: value}
	return nil
}

func (s *Session) trump() (Card, error) {
	if s.Trump == nil {
		return Card{}, ErrNoTrump
	}
	return *s.Trump, nil
}

func (s *Session) revealed(env Env) (map[int]string, error) {
	revealed, err := env.Revealed(s.RandomID)
	if err != nil {
		return nil, ErrRandomness.withf("handle %d: %v", s.RandomID, err)
	}
	return revealed, nil
}

func (s *Session) deckExhausted() bool {
	return s.DeckOffset >= s.Rules.TrumpSlot()
}

func (s *Session) needsDeal() bool {
	if s.deckExhausted() {
		return false
	}
	for _, p := range s.Players {
		if len(p.Slots) < s.Rules.MinHandSize {
			return true
		}
	}
	return false
}

// deal tops hands up from the deck cursor, starting with the attacker. The
// trump slot is never dealt, so a pass can stop short.
func (s *Session) deal(fx *Effects) error {
	attacker, err := s.playerByRole(RoleAttacker)
	if err != nil {
		return err
	}
	last := s.Rules.TrumpSlot()
	for _, p := range s.actingOrder(attacker.Position) {
		need := s.Rules.MinHandSize - len(p.Slots)
		if need <= 0 {
			continue
		}
		end := min(s.DeckOffset+need, last)
		if end <= s.DeckOffset {
			break
		}
		slots := make([]int, 0, end-s.DeckOffset)
		for slot := s.DeckOffset; slot < end; slot++ {
			slots = append(slots, slot)
		}
		p.AddSlots(slots...)
		fx.Assigns = append(fx.Assigns, Assign{Handle: s.RandomID, Addr: p.Addr, Slots: slots})
		s.DeckOffset = end
	}
	return s.moveTo(StageDealing)
}

// revealOrUpdate requests the slots not yet opened. When every slot is already
// known the ledger is brought up to date straight away.
func (s *Session) revealOrUpdate(env Env, fx *Effects, slots []int) error {
	revealed, err := s.revealed(env)
	if err != nil {
		return err
	}
	var pending []int
	for _, slot := range slots {
		if _, ok := revealed[slot]; !ok {
			pending = append(pending, slot)
		}
	}
	if len(pending) == 0 {
		return s.updateAttacks(env, fx)
	}
	fx.Reveals = append(fx.Reveals, Reveal{Handle: s.RandomID, Slots: pending})
	return nil
}

// updateAttacks confirms every pending entry whose slot has been opened.
// Entries still waiting on a reveal are left for a later event. A revealed
// card that differs from the player's claim is handed back.
func (s *Session) updateAttacks(env Env, fx *Effects) error {
	revealed, err := s.revealed(env)
	if err != nil {
		return err
	}
	kept := make(Ledger, 0, len(s.Attacks))
	for _, a := range s.Attacks {
		switch a.State {
		case AttackConfirmOpen:
			value, ok := revealed[a.Open.Slot]
			if !ok {
				break
			}
			if value != a.OpenClaim {
				if err := s.rollbackOpen(fx, a); err != nil {
					return err
				}
				continue
			}
			if err := a.ConfirmOpen(value); err != nil {
				return err
			}
		case AttackConfirmClose:
			value, ok := revealed[a.Close.Slot]
			if !ok {
				break
			}
			if value != a.CloseClaim {
				if err := s.rollbackClose(fx, &a); err != nil {
					return err
				}
				break
			}
			if err := a.ConfirmClose(value); err != nil {
				return err
			}
		case AttackOpen, AttackClosed:
		default:
			return ErrInvalidAttackStatus.withf("unknown state %d", int(a.State))
		}
		kept = append(kept, a)
	}
	s.Attacks = kept
	if s.Attacks.AllConfirmed() {
		s.ForwardRoles = nil
	}

	if err := s.updateFinished(); err != nil {
		return err
	}
	ended, err := s.maybeEndGame(fx)
	if err != nil || ended {
		return err
	}
	return s.setTimeoutOrEndRound(env, fx)
}

func (s *Session) rollbackOpen(fx *Effects, a Attack) error {
	owner, err := s.playerByAddr(a.OpenBy)
	if err != nil {
		return err
	}
	owner.AddSlots(a.Open.Slot)
	if a.Forwarded && s.ForwardRoles != nil {
		s.applyRoles(s.ForwardRoles)
		s.ForwardRoles = nil
	}
	fx.Notices = append(fx.Notices, Notice{Kind: NoticeMisplay, Addr: a.OpenBy, Slot: a.Open.Slot})
	return nil
}

func (s *Session) rollbackClose(fx *Effects, a *Attack) error {
	owner, err := s.playerByAddr(a.CloseBy)
	if err != nil {
		return err
	}
	by := a.CloseBy
	slot, err := a.ReopenClose()
	if err != nil {
		return err
	}
	owner.AddSlots(slot)
	fx.Notices = append(fx.Notices, Notice{Kind: NoticeMisplay, Addr: by, Slot: slot})
	return nil
}
