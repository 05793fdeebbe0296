package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/wfunc/durak/durak"
	"github.com/wfunc/durak/logger"
	"github.com/wfunc/durak/models"
	"github.com/wfunc/durak/persistence"
)

var (
	ErrNotZeroSum    = errors.New("settlement is not zero-sum")
	ErrUnknownSettle = errors.New("unknown settle kind")
)

// Outcome is what a table reports when it emits settles.
type Outcome struct {
	RoomID string
	Handle int
	// Ranking lists addresses from the winner to the loser.
	Ranking []string
	Settles []durak.Settle
	// Final is set when the settles close a game rather than eject a player
	// from the lobby.
	Final bool
}

type LedgerService struct {
	db persistence.Database
}

func NewLedgerService(db persistence.Database) *LedgerService {
	return &LedgerService{db: db}
}

// Build turns settles into a balance transfer set. Every ejected player gets
// a transfer so the game counts towards their stats.
func Build(o Outcome) (models.Settlement, error) {
	s := models.Settlement{RoomID: o.RoomID, Handle: o.Handle}
	if len(o.Ranking) > 1 {
		s.Winner, s.Loser = o.Ranking[0], o.Ranking[len(o.Ranking)-1]
	}

	deltas := make(map[string]int64)
	var order []string
	touch := func(addr string) {
		if _, ok := deltas[addr]; !ok {
			deltas[addr] = 0
			order = append(order, addr)
		}
	}

	var sum int64
	for _, st := range o.Settles {
		touch(st.Addr)
		switch st.Kind {
		case durak.SettleAdd:
			deltas[st.Addr] += int64(st.Amount)
			sum += int64(st.Amount)
			s.Amount = st.Amount
		case durak.SettleSub:
			deltas[st.Addr] -= int64(st.Amount)
			sum -= int64(st.Amount)
		case durak.SettleEject:
		default:
			return models.Settlement{}, fmt.Errorf("%w: %q", ErrUnknownSettle, st.Kind)
		}
	}
	if sum != 0 {
		return models.Settlement{}, fmt.Errorf("%w: room %s is off by %d", ErrNotZeroSum, o.RoomID, sum)
	}

	for _, addr := range order {
		s.Transfers = append(s.Transfers, models.Transfer{Addr: addr, Delta: deltas[addr]})
	}
	return s, nil
}

// Settle persists a finished game. Lobby ejects carry no money and are not
// recorded.
func (l *LedgerService) Settle(ctx context.Context, o Outcome) error {
	if !o.Final {
		return nil
	}
	s, err := Build(o)
	if err != nil {
		return err
	}
	if err := l.db.ApplySettlement(ctx, s); err != nil {
		return fmt.Errorf("apply settlement for room %s: %w", o.RoomID, err)
	}
	logger.Log.Infow("game settled", "room", o.RoomID, "handle", o.Handle, "winner", s.Winner, "loser", s.Loser, "amount", s.Amount)
	return nil
}

func (l *LedgerService) PlayerStats(ctx context.Context, addr string) (*models.PlayerStats, error) {
	return l.db.GetPlayerStats(ctx, addr)
}
