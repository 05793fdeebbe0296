package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
)

// InitModule wires the Nakama Go runtime module, registering RPCs and match handlers.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	if err := initializer.RegisterRpc(RpcQuickMatch, rpcQuickMatch); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameDurak, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return newMatchHandler(nk), nil
	}); err != nil {
		return err
	}

	logger.Info("Durak Go module loaded.")
	return nil
}

type QuickMatchRequest struct {
	Players int    `json:"players"`
	Bet     uint64 `json:"bet"`
}

// QuickMatchResponse is the payload returned to clients when requesting a joinable match.
type QuickMatchResponse struct {
	MatchID string `json:"match_id"`
	IsNew   bool   `json:"is_new"`
}

// MatchLister is the part of runtime.NakamaModule quick match needs.
type MatchLister interface {
	MatchList(ctx context.Context, limit int, authoritative bool, label string, minSize, maxSize *int, query string) ([]*api.Match, error)
	MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error)
}

var (
	errBadPayload = runtime.NewError("invalid quick match payload", 3) // INVALID_ARGUMENT
	errInternal   = runtime.NewError("internal error", 13)             // INTERNAL
)

func rpcQuickMatch(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	return quickMatch(ctx, logger, nk, payload)
}

func quickMatch(ctx context.Context, logger runtime.Logger, nk MatchLister, payload string) (string, error) {
	var req QuickMatchRequest
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", errBadPayload
		}
	}
	rules := rulesFrom(map[string]interface{}{"players": req.Players, "bet": int64(req.Bet)})
	if err := rules.Validate(); err != nil {
		return "", runtime.NewError(err.Error(), 3)
	}

	query := fmt.Sprintf("+label.game:durak +label.open:T +label.seats:%d +label.bet:%d", rules.NumPlayers, rules.BetAmount)
	maxSize := rules.NumPlayers - 1
	matches, err := nk.MatchList(ctx, 10, true, "", nil, &maxSize, query)
	if err != nil {
		logger.Error("MatchList error: %v", err)
		return "", errInternal
	}

	resp := QuickMatchResponse{}
	if len(matches) > 0 {
		resp.MatchID = matches[0].MatchId
	} else {
		// Seats are assigned in MatchJoin.
		matchID, err := nk.MatchCreate(ctx, MatchNameDurak, map[string]interface{}{
			"players": rules.NumPlayers,
			"bet":     int64(rules.BetAmount),
		})
		if err != nil {
			logger.Error("MatchCreate error: %v", err)
			return "", errInternal
		}
		resp = QuickMatchResponse{MatchID: matchID, IsNew: true}
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return "", errInternal
	}
	return string(b), nil
}
