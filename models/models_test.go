package models

import "testing"

func TestPlayerStats_Apply(t *testing.T) {
	settlement := Settlement{Winner: "alice", Loser: "bob", Amount: 10}

	alice := PlayerStats{Addr: "alice", Balance: StartingBalance}
	alice.Apply(settlement, Transfer{Addr: "alice", Delta: 10})
	if alice.Wins != 1 || alice.Losses != 0 || alice.Balance != StartingBalance+10 {
		t.Errorf("Unexpected winner stats: %+v", alice)
	}

	carol := PlayerStats{Addr: "carol"}
	carol.Apply(settlement, Transfer{Addr: "carol"})
	if carol.TotalGames != 1 || carol.Wins != 0 || carol.Losses != 0 {
		t.Errorf("Unexpected bystander stats: %+v", carol)
	}
}
