package nakama

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"

	"github.com/wfunc/durak/models"
	"github.com/wfunc/durak/services"
)

// Wallet is the part of runtime.NakamaModule used to settle bets.
type Wallet interface {
	WalletUpdate(ctx context.Context, userID string, changeset map[string]int64, metadata map[string]interface{}, updateLedger bool) (map[string]int64, map[string]int64, error)
}

// Storage is the part of runtime.NakamaModule used for checkpoints.
type Storage interface {
	StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error)
}

// walletSettler moves coins between Nakama wallets. Nakama keeps the ledger
// itself, so only transfers are written.
type walletSettler struct {
	wallet Wallet
}

func (w walletSettler) Settle(ctx context.Context, o services.Outcome) error {
	if !o.Final {
		return nil
	}
	settlement, err := services.Build(o)
	if err != nil {
		return err
	}
	for _, tr := range settlement.Transfers {
		if tr.Delta == 0 {
			continue
		}
		metadata := map[string]interface{}{
			"room":   o.RoomID,
			"handle": o.Handle,
			"winner": settlement.Winner,
		}
		if _, _, err := w.wallet.WalletUpdate(ctx, tr.Addr, map[string]int64{WalletCurrency: tr.Delta}, metadata, true); err != nil {
			return fmt.Errorf("failed to update wallet for user %s: %w", tr.Addr, err)
		}
	}
	return nil
}

// storageStore writes checkpoints as system owned storage objects.
type storageStore struct {
	storage Storage
}

func (s storageStore) SaveCheckpoint(ctx context.Context, cp models.Checkpoint) error {
	_, err := s.storage.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      CheckpointCollection,
		Key:             cp.RoomID,
		Value:           string(cp.Snapshot),
		PermissionRead:  0,
		PermissionWrite: 0,
	}})
	return err
}

type tickTask struct {
	at       time.Time
	callback func()
}

// tickScheduler holds deadlines until the match loop fires them. Nakama runs
// every match callback on one goroutine, so callbacks never race the table.
type tickScheduler struct {
	mu    sync.Mutex
	now   func() time.Time
	tasks map[string]tickTask
	seq   int64
}

func newTickScheduler(now func() time.Time) *tickScheduler {
	return &tickScheduler{now: now, tasks: make(map[string]tickTask)}
}

func (s *tickScheduler) Arm(key string, delay time.Duration, callback func()) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.tasks[key] = tickTask{at: s.now().Add(delay), callback: callback}
	return s.seq
}

func (s *tickScheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[key]
	delete(s.tasks, key)
	return ok
}

// fire runs every due callback, earliest first.
func (s *tickScheduler) fire() int {
	s.mu.Lock()
	now := s.now()
	var due []tickTask
	for key, task := range s.tasks {
		if !task.at.After(now) {
			due = append(due, task)
			delete(s.tasks, key)
		}
	}
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, task := range due {
		task.callback()
	}
	return len(due)
}
