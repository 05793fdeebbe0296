package durak

import "time"

func (s *Session) askToAct(env Env, fx *Effects) error {
	if err := s.moveTo(StageActing); err != nil {
		return err
	}
	return s.setTimeoutOrEndRound(env, fx)
}

func (s *Session) canAttack() (bool, error) {
	if s.Stage != StageActing && s.Stage != StageEndOfRound {
		return false, nil
	}
	if len(s.Attacks) >= s.Rules.AttackCapacity {
		return false, nil
	}
	defender, err := s.playerByRole(RoleDefender)
	if err != nil {
		return false, err
	}
	return len(defender.Slots) > 0, nil
}

// endRound resolves the ledger. taken means the defense failed and the
// defender collects every card on the table.
func (s *Session) endRound(env Env, fx *Effects, taken bool) error {
	switch s.Stage {
	case StageEndOfGame:
		return nil
	case StageActing:
		if taken && len(s.Attacks) < s.Rules.AttackCapacity {
			if err := s.moveTo(StageEndOfRound); err != nil {
				return err
			}
			return s.arm(env, fx, RoleAttacker, s.Rules.EndOfRoundTimeout)
		}
	case StageEndOfRound:
	default:
		return ErrInvalidStage.withf("end round in %s", s.Stage)
	}

	if !s.Attacks.AllConfirmed() {
		return ErrUnconfirmedCard.withf("ledger has pending reveals")
	}
	defender, err := s.playerByRole(RoleDefender)
	if err != nil {
		return err
	}
	slots := s.Attacks.Slots()
	if taken {
		defender.AddSlots(slots...)
	} else {
		s.Discarded = append(s.Discarded, slots...)
	}
	s.Attacks = nil
	s.ForwardRoles = nil

	dealing := s.needsDeal()
	if dealing {
		if err := s.deal(fx); err != nil {
			return err
		}
	}
	if err := s.updateFinished(); err != nil {
		return err
	}
	ended, err := s.maybeEndGame(fx)
	if err != nil || ended {
		return err
	}
	if err := s.rotateRoles(taken); err != nil {
		return err
	}
	if dealing {
		return nil
	}
	return s.askToAct(env, fx)
}

func (s *Session) maybeEndGame(fx *Effects) (bool, error) {
	if s.Stage == StageEndOfGame {
		return true, nil
	}
	if len(s.Players) == 0 {
		return false, ErrEmptyPlayers
	}
	if s.Finished < len(s.Players)-1 {
		return false, nil
	}
	if err := s.moveTo(StageEndOfGame); err != nil {
		return false, err
	}
	s.settleGame(fx)
	return true, nil
}

// settleGame moves the bet from the worst placed player to the winner and
// sends everyone home.
func (s *Session) settleGame(fx *Effects) {
	order := s.rankOrder()
	winner, loser := order[0], order[len(order)-1]
	if s.Rules.BetAmount > 0 && winner != loser {
		fx.Settles = append(fx.Settles,
			Settle{Kind: SettleAdd, Addr: winner.Addr, Amount: s.Rules.BetAmount},
			Settle{Kind: SettleSub, Addr: loser.Addr, Amount: s.Rules.BetAmount},
		)
	}
	for _, p := range s.Players {
		fx.Settles = append(fx.Settles, Settle{Kind: SettleEject, Addr: p.Addr})
		p.Role = RoleNone
	}
	s.Awaiting, s.Deadline = "", 0
	fx.Timeout = nil
	fx.Checkpoint = true
	fx.ResetTimer = s.Rules.ResetTimeout
}

func (s *Session) setTimeoutOrEndRound(env Env, fx *Effects) error {
	if s.Stage == StageEndOfGame {
		return nil
	}
	defender, err := s.playerByRole(RoleDefender)
	if err != nil {
		return err
	}
	if s.Stage == StageActing && len(defender.Slots) == 0 && s.Attacks.AllClosed() {
		return s.endRound(env, fx, false)
	}
	if !s.Attacks.AllConfirmed() {
		return nil
	}
	switch {
	case s.Stage == StageEndOfRound:
		return s.arm(env, fx, RoleAttacker, s.Rules.ThrowInTimeout)
	case s.Attacks.AnyOpen():
		return s.arm(env, fx, RoleDefender, s.Rules.ActTimeout)
	default:
		return s.arm(env, fx, RoleAttacker, s.Rules.ActTimeout)
	}
}

// arm names the player the next timeout is for. A later arm in the same
// event replaces an earlier one.
func (s *Session) arm(env Env, fx *Effects, role Role, d time.Duration) error {
	p, err := s.playerByRole(role)
	if err != nil {
		return err
	}
	s.Awaiting = p.Addr
	s.Deadline = env.Now().Add(d).UnixMilli()
	fx.Timeout = &Timeout{Addr: p.Addr, Duration: d}
	return nil
}

// actionTimeout plays the default move for the awaited player. Timeouts for
// anyone else, or arriving early, belong to a superseded timer.
func (s *Session) actionTimeout(env Env, fx *Effects, addr string) error {
	switch s.Stage {
	case StageActing, StageEndOfRound:
	case StageWaiting, StageEndOfGame:
		return nil
	case StageShuffling, StageRevealingTrump, StageDealing:
		return ErrInvalidStage.withf("timeout in %s", s.Stage)
	default:
		return ErrInvalidStage.withf("unknown stage %d", int(s.Stage))
	}
	if addr == "" || addr != s.Awaiting || env.Now().UnixMilli() < s.Deadline {
		return nil
	}
	if !s.Attacks.AllConfirmed() {
		return nil
	}
	p, err := s.playerByAddr(addr)
	if err != nil {
		return err
	}
	s.Awaiting, s.Deadline = "", 0

	if s.Stage == StageEndOfRound {
		return s.endRound(env, fx, true)
	}
	switch p.Role {
	case RoleDefender:
		fx.Notices = append(fx.Notices, Notice{Kind: NoticeTake, Addr: addr})
		return s.endRound(env, fx, true)
	case RoleAttacker:
		fx.Notices = append(fx.Notices, Notice{Kind: NoticeBeated, Addr: addr})
		return s.endRound(env, fx, false)
	case RoleCoAttacker, RoleNone:
		return nil
	default:
		return ErrNoPlayerFoundByRole.withf("unknown role %d", int(p.Role))
	}
}
