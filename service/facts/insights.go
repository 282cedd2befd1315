package facts

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// WalletInsights is the aggregate view of a wallet's recent activity,
// computed locally from a batch of enhanced transactions with no external
// calls.
type WalletInsights struct {
	TotalTx              int                `json:"totalTx"`
	Success              int                `json:"success"`
	Failed               int                `json:"failed"`
	SuccessRate          float64            `json:"successRate"`
	Fee                  FeeTotals          `json:"fee"`
	Types                TypeBreakdown      `json:"types"`
	TopPrograms          []ProgramRank      `json:"topPrograms"`
	TopProgramShare      float64            `json:"topProgramShare"`
	UniqueCounterparties int                `json:"uniqueCounterparties"`
	TopCounterparties    []CounterpartyRank `json:"topCounterparties"`
	ActiveHours          ActiveHours        `json:"activeHours"`
}

// FeeTotals aggregates fees in decimal SOL.
type FeeTotals struct {
	TotalSol float64 `json:"totalSol"`
	AvgSol   float64 `json:"avgSol"`
}

// TypeStat is a count plus its share of total transactions, as a percentage
// rounded to two decimals.
type TypeStat struct {
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

// TypeBreakdown splits transactions into the three coarse classes.
type TypeBreakdown struct {
	Swap     TypeStat `json:"swap"`
	Transfer TypeStat `json:"transfer"`
	Other    TypeStat `json:"other"`
}

// ProgramRank is one entry of the top-programs ranking. ProgramID and
// ExplorerURL are set when a representative on-chain program ID is known.
type ProgramRank struct {
	Program     string `json:"program"`
	Count       int    `json:"count"`
	ProgramID   string `json:"programId,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// CounterpartyRank is one entry of the top-counterparties ranking. TxCount is
// the number of transactions touching the address, not the number of transfer
// legs. Sent and Received are directional sub-counts relative to the main
// wallet and stay zero when no main wallet was supplied.
type CounterpartyRank struct {
	Address  string `json:"address"`
	TxCount  int    `json:"txCount"`
	Sent     int    `json:"sent,omitempty"`
	Received int    `json:"received,omitempty"`
}

// ActiveHours reports the wallet's busiest local-time window.
type ActiveHours struct {
	BestStartHour int    `json:"bestStartHour"`
	BestEndHour   int    `json:"bestEndHour"`
	WindowSize    int    `json:"windowSize"`
	CountInWindow int    `json:"countInWindow"`
	Label         string `json:"label"`
}

// InsightsOptions tunes ComputeWalletInsights.
type InsightsOptions struct {
	// MainWallet is the wallet under analysis. It is excluded from
	// counterparty rankings and enables directional sub-counts.
	MainWallet string
	// KeepUnknownInTop keeps "Unknown" entries in the program ranking even
	// when named programs exist. Default (false) demotes them.
	KeepUnknownInTop bool
}

const (
	topProgramsCap       = 5
	topCounterpartiesCap = 10
)

// programTally tracks a program's transaction count and a representative
// on-chain ID when one was observed.
type programTally struct {
	count     int
	programID string
}

// ComputeWalletInsights folds a batch of transactions into aggregate wallet
// analytics. The timezone (IANA name) buckets transaction timestamps into
// local hours; unknown zones fall back to UTC. Pure and idempotent.
func ComputeWalletInsights(txs []*Transaction, tz string, opts InsightsOptions) WalletInsights {
	loc, err := time.LoadLocation(tz)
	if err != nil || loc == nil {
		loc = time.UTC
	}

	totalTx := len(txs)
	insights := WalletInsights{
		TotalTx:           totalTx,
		TopPrograms:       []ProgramRank{},
		TopCounterparties: []CounterpartyRank{},
	}

	// Token accounts must be aggregated across the whole batch before any
	// counterparty classification; see TokenAccountSet.
	tokenAccounts := TokenAccountSet(txs)

	var feeLamports Lamports
	programs := make(map[string]*programTally)
	hourBuckets := make([]int, 24)
	counterpartyTx := make(map[string]int)
	counterpartySent := make(map[string]int)
	counterpartyRecv := make(map[string]int)

	for _, tx := range txs {
		if tx == nil {
			continue
		}
		if tx.Failed() {
			insights.Failed++
		} else {
			insights.Success++
		}
		feeLamports += tx.Fee

		switch strings.ToUpper(tx.Type) {
		case TypeSwap:
			insights.Types.Swap.Count++
		case TypeTransfer:
			insights.Types.Transfer.Count++
		default:
			insights.Types.Other.Count++
		}

		name, programID := resolveProgram(tx)
		tally := programs[name]
		if tally == nil {
			tally = &programTally{}
			programs[name] = tally
		}
		tally.count++
		if tally.programID == "" {
			tally.programID = programID
		}

		if tx.Timestamp > 0 {
			hour := time.Unix(tx.Timestamp, 0).In(loc).Hour()
			hourBuckets[hour]++
		}

		cps := collectTxCounterparties(tx, opts.MainWallet, tokenAccounts)
		for addr := range cps.touched {
			counterpartyTx[addr]++
		}
		for addr := range cps.sent {
			counterpartySent[addr]++
		}
		for addr := range cps.recv {
			counterpartyRecv[addr]++
		}
	}

	if totalTx > 0 {
		insights.SuccessRate = float64(insights.Success) / float64(totalTx)
		insights.Fee.TotalSol = feeLamports.Sol()
		insights.Fee.AvgSol = insights.Fee.TotalSol / float64(totalTx)
		insights.Types.Swap.Pct = pct(insights.Types.Swap.Count, totalTx)
		insights.Types.Transfer.Pct = pct(insights.Types.Transfer.Count, totalTx)
		insights.Types.Other.Pct = pct(insights.Types.Other.Count, totalTx)
	}

	insights.TopPrograms = rankPrograms(programs, opts.KeepUnknownInTop)
	if totalTx > 0 && len(insights.TopPrograms) > 0 {
		insights.TopProgramShare = float64(insights.TopPrograms[0].Count) / float64(totalTx)
	}

	insights.UniqueCounterparties = len(counterpartyTx)
	insights.TopCounterparties = rankCounterparties(counterpartyTx, counterpartySent, counterpartyRecv)

	windowSize := activeHoursWindowSize(totalTx)
	roll := BestRollingWindow(hourBuckets, windowSize)
	insights.ActiveHours = ActiveHours{
		BestStartHour: roll.Start,
		BestEndHour:   roll.End,
		WindowSize:    windowSize,
		CountInWindow: roll.Sum,
		Label:         windowLabel(roll.Start, windowSize),
	}

	return insights
}

// resolveProgram picks a protocol name for ranking. The source label wins
// when it maps to something real; otherwise the instruction program IDs are
// scanned against the known-program table. Unresolvable transactions rank
// under "Unknown".
func resolveProgram(tx *Transaction) (name, programID string) {
	if tx.Source != "" && !strings.EqualFold(tx.Source, "UNKNOWN") {
		name = CanonicalProgramName(tx.Source)
	}

	if name == "" || IsInfraProgram(name) {
		for _, ix := range tx.Instructions {
			if known := ProgramNameForID(ix.ProgramID); known != "" && !IsInfraProgram(known) {
				return known, ix.ProgramID
			}
		}
	}

	if name == "" {
		return "Unknown", ""
	}

	// Attach a representative program ID when one of the instructions maps to
	// the same protocol.
	for _, ix := range tx.Instructions {
		if ProgramNameForID(ix.ProgramID) == name {
			return name, ix.ProgramID
		}
	}
	return name, ""
}

// rankPrograms orders programs by count (ties by name) and hides infra and
// unknown entries whenever at least one named protocol is present.
func rankPrograms(programs map[string]*programTally, keepUnknown bool) []ProgramRank {
	hidden := func(name string) bool {
		return IsInfraProgram(name) || strings.EqualFold(name, "unknown")
	}

	var visible, fallback []ProgramRank
	for name, tally := range programs {
		if tally.count == 0 {
			continue
		}
		rank := ProgramRank{Program: name, Count: tally.count, ProgramID: tally.programID}
		if rank.ProgramID != "" {
			rank.ExplorerURL = "https://solscan.io/account/" + rank.ProgramID
		}
		if hidden(name) && !keepUnknown {
			fallback = append(fallback, rank)
		} else {
			visible = append(visible, rank)
		}
	}
	if len(visible) == 0 {
		visible = fallback
	}

	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Count != visible[j].Count {
			return visible[i].Count > visible[j].Count
		}
		return visible[i].Program < visible[j].Program
	})
	if len(visible) > topProgramsCap {
		visible = visible[:topProgramsCap]
	}
	if visible == nil {
		visible = []ProgramRank{}
	}
	return visible
}

// rankCounterparties orders counterparties by transaction-touch count, ties
// by address.
func rankCounterparties(txCounts, sent, recv map[string]int) []CounterpartyRank {
	ranks := make([]CounterpartyRank, 0, len(txCounts))
	for addr, count := range txCounts {
		ranks = append(ranks, CounterpartyRank{
			Address:  addr,
			TxCount:  count,
			Sent:     sent[addr],
			Received: recv[addr],
		})
	}
	sort.Slice(ranks, func(i, j int) bool {
		if ranks[i].TxCount != ranks[j].TxCount {
			return ranks[i].TxCount > ranks[j].TxCount
		}
		return ranks[i].Address < ranks[j].Address
	})
	if len(ranks) > topCounterpartiesCap {
		ranks = ranks[:topCounterpartiesCap]
	}
	return ranks
}

// activeHoursWindowSize scales the rolling window with activity volume.
func activeHoursWindowSize(totalTx int) int {
	switch {
	case totalTx >= 50:
		return 6
	case totalTx >= 30:
		return 4
	default:
		return 3
	}
}

// windowLabel renders a window like "2 PM–8 PM". The end hour is exclusive.
func windowLabel(start, width int) string {
	return hourLabel(start) + "–" + hourLabel((start+width)%24)
}

func hourLabel(hour int) string {
	h := hour % 12
	if h == 0 {
		h = 12
	}
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	return fmt.Sprintf("%d %s", h, suffix)
}

// pct converts a count to a percentage of total, rounded to two decimals.
func pct(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*100*100) / 100
}
