package nakama

const (
	MatchNameDurak = "durak_match"
	RpcQuickMatch  = "durak_quick_match"

	WalletCurrency       = "coins"
	CheckpointCollection = "durak_checkpoints"

	tickRate = 5
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame int64 = 1
	OpAction    int64 = 2

	// Server -> Client events
	OpTableState int64 = 101
	OpNotice     int64 = 102
	OpGameEnd    int64 = 103
	OpError      int64 = 104
)
