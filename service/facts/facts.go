package facts

import "sort"

// Facts is the normalized, deterministic summary of a single transaction.
// All amounts are decimal (SOL or decimalized token units). Ground truth for
// the narrator: downstream consumers echo these numbers verbatim.
type Facts struct {
	Program               string               `json:"program,omitempty"`
	WalletCount           int                  `json:"walletCount"`
	TokenTransferCount    int                  `json:"tokenTransferCount"`
	ATA                   ATAFacts             `json:"ata"`
	NativeTotalSol        float64              `json:"nativeTotalSol"`
	CommonPerRecipientSol float64              `json:"commonPerRecipientSol,omitempty"`
	FeeSol                float64              `json:"feeSol"`
	Airdrop               *AirdropFacts        `json:"airdrop,omitempty"`
	Swap                  *SwapFacts           `json:"swap,omitempty"`
	Participants          *Participants        `json:"participants,omitempty"`
	ByMint                map[string]MintDelta `json:"byMint"`
}

// ATAFacts describes associated-token-account lifecycle hints.
// Created considers top-level and inner instructions; CreatedCount counts
// top-level instructions only, so Created may be true with a zero count.
// Closure is inferred from the exact rent-refund amount returning to the fee
// payer, which is a heuristic rather than a ledger-exact detection.
type ATAFacts struct {
	Created      bool `json:"created"`
	Closed       bool `json:"closed"`
	CreatedCount int  `json:"createdCount"`
	ClosedCount  int  `json:"closedCount"`
}

// AirdropFacts describes a multisend pattern: one mint, every transfer
// originating from the fee payer, more than one distinct recipient.
type AirdropFacts struct {
	Mint           string   `json:"mint"`
	PerRecipient   *float64 `json:"perRecipient,omitempty"`
	RecipientCount int      `json:"recipientCount"`
	Total          float64  `json:"total"`
}

// SwapView distinguishes who actually swapped.
type SwapView string

const (
	// ViewTrader means the fee payer itself moved tokens.
	ViewTrader SwapView = "trader"
	// ViewAmbient means a swap happened in the transaction but the fee payer
	// only paid fees or rent; tokens moved between other wallets.
	ViewAmbient SwapView = "ambient"
)

// SwapFacts is the fee-payer-centric view of a swap.
type SwapFacts struct {
	Program      string        `json:"program,omitempty"`
	InputSol     float64       `json:"inputSol,omitempty"`
	OutputSol    float64       `json:"outputSol,omitempty"`
	InputTokens  []TokenAmount `json:"inputTokens"`
	OutputTokens []TokenAmount `json:"outputTokens"`
	View         SwapView      `json:"view"`
	RouteOutputs []TokenAmount `json:"routeOutputs,omitempty"`
	RouteSol     float64       `json:"routeSol,omitempty"`
}

// TokenAmount pairs a mint with a decimal amount.
type TokenAmount struct {
	Mint   string  `json:"mint"`
	Amount float64 `json:"amount"`
}

// Participants summarizes who was involved in the transaction.
type Participants struct {
	Recipients   int `json:"recipients"`
	TotalWallets int `json:"totalWallets"`
}

// MintDelta accumulates fee-payer-relative movement for one mint: sent sums
// legs where the fee payer is the source, recv where it is the destination.
type MintDelta struct {
	Sent float64 `json:"sent"`
	Recv float64 `json:"recv"`
}

// Dust thresholds below which a net per-mint delta is treated as routing
// noise. Upstream decimalizes SOL to 9 places and most SPL mints to 6.
const (
	solDustThreshold = 1e-9
	splDustThreshold = 1e-6
)

// TypeSwap and TypeTransfer are the classification tags the engine keys on.
// The upstream enumeration is wider; everything else is "other".
const (
	TypeSwap     = "SWAP"
	TypeTransfer = "TRANSFER"
)

// ComputeFacts derives the deterministic fact set for one transaction.
// It is total: malformed or missing fields degrade to omitted facts, never an
// error. Calling it twice on the same input yields identical output.
func ComputeFacts(tx *Transaction) *Facts {
	facts := &Facts{ByMint: map[string]MintDelta{}}
	if tx == nil {
		return facts
	}

	facts.Program = CanonicalProgramName(tx.Source)
	facts.ATA = detectATAFacts(tx)
	facts.WalletCount = CountWallets(tx)
	facts.TokenTransferCount = len(tx.TokenTransfers)
	facts.FeeSol = tx.Fee.Sol()

	// Native totals across the whole transaction, plus a frequency histogram
	// of transfer amounts. The most common amount approximates per-recipient
	// ATA funding.
	var nativeTotal Lamports
	nativeFreq := make(map[Lamports]int)
	for _, n := range tx.NativeTransfers {
		nativeTotal += n.Amount
		nativeFreq[n.Amount]++
	}
	facts.NativeTotalSol = nativeTotal.Sol()
	if common, count := dominantLamports(nativeFreq); count > 0 && common > 0 {
		facts.CommonPerRecipientSol = common.Sol()
	}

	// Per-mint deltas relative to the fee payer; amounts are already decimal.
	for _, t := range tx.TokenTransfers {
		if t.Mint == "" {
			continue
		}
		delta := facts.ByMint[t.Mint]
		if tx.FeePayer != "" && t.FromUserAccount == tx.FeePayer {
			delta.Sent += t.TokenAmount
		}
		if tx.FeePayer != "" && t.ToUserAccount == tx.FeePayer {
			delta.Recv += t.TokenAmount
		}
		facts.ByMint[t.Mint] = delta
	}

	hasSwapSignal := tx.Type == TypeSwap || tx.Events.Swap != nil

	// Airdrop and swap are mutually exclusive: the airdrop heuristic only
	// fires on TRANSFER transactions with no swap signal.
	if !hasSwapSignal && tx.Type == TypeTransfer && len(tx.TokenTransfers) > 1 && tx.FeePayer != "" {
		facts.Airdrop = detectAirdrop(tx)
	}

	if hasSwapSignal {
		recipients := 0
		if facts.Airdrop != nil {
			recipients = facts.Airdrop.RecipientCount
		}
		facts.Participants = &Participants{
			Recipients:   recipients,
			TotalWallets: facts.WalletCount,
		}
		facts.Swap = classifySwap(tx, facts.ByMint, facts.Program)
	}

	return facts
}

// detectATAFacts scans instructions for ATA creation and native transfers for
// the rent-refund closure heuristic.
func detectATAFacts(tx *Transaction) ATAFacts {
	ataProgram := AssociatedTokenProgramID.String()
	var out ATAFacts

	for _, ix := range tx.Instructions {
		if ix.ProgramID == ataProgram {
			out.Created = true
			out.CreatedCount++
		}
		for _, inner := range ix.InnerInstructions {
			if inner.ProgramID == ataProgram {
				out.Created = true
			}
		}
	}

	for _, n := range tx.NativeTransfers {
		if n.Amount == ataRentRefundLamports && n.ToUserAccount != "" && n.ToUserAccount == tx.FeePayer {
			out.Closed = true
			out.ClosedCount++
		}
	}
	return out
}

// detectAirdrop validates the multisend pattern. Any transfer not sourced
// from the fee payer, or any second mint, aborts detection entirely.
func detectAirdrop(tx *Transaction) *AirdropFacts {
	var mint string
	recipients := make(map[string]struct{})
	amountFreq := make(map[float64]int)
	total := 0.0

	for _, t := range tx.TokenTransfers {
		if t.FromUserAccount != tx.FeePayer {
			return nil
		}
		if mint == "" {
			mint = t.Mint
		}
		if t.Mint != mint {
			return nil
		}
		if t.ToUserAccount != "" {
			recipients[t.ToUserAccount] = struct{}{}
		}
		total += t.TokenAmount
		amountFreq[t.TokenAmount]++
	}

	if mint == "" || len(recipients) <= 1 {
		return nil
	}

	out := &AirdropFacts{
		Mint:           mint,
		RecipientCount: len(recipients),
		Total:          total,
	}
	if dominant, count := dominantAmount(amountFreq); count > 0 {
		out.PerRecipient = &dominant
	}
	return out
}

// classifySwap builds the fee-payer-centric swap record. When the fee payer
// shows no non-native token movement the swap is ambient: the record reports
// total movement across the whole transaction grouped by mint instead.
func classifySwap(tx *Transaction, byMint map[string]MintDelta, program string) *SwapFacts {
	feePayerMovedSPL := false
	for mint, delta := range byMint {
		if !isSolMint(mint) && delta.Sent+delta.Recv > 0 {
			feePayerMovedSPL = true
			break
		}
	}

	if !feePayerMovedSPL {
		return ambientSwap(tx, program)
	}
	return traderSwap(tx, byMint, program)
}

func ambientSwap(tx *Transaction, program string) *SwapFacts {
	routeTotals := make(map[string]float64)
	for _, t := range tx.TokenTransfers {
		if t.Mint == "" || t.TokenAmount == 0 {
			continue
		}
		routeTotals[t.Mint] += t.TokenAmount
	}

	out := &SwapFacts{
		Program:      program,
		InputTokens:  []TokenAmount{},
		OutputTokens: []TokenAmount{},
		View:         ViewAmbient,
		RouteSol:     routeTotals[WSOLMint],
	}
	for mint, amount := range routeTotals {
		if isSolMint(mint) {
			continue
		}
		out.RouteOutputs = append(out.RouteOutputs, TokenAmount{Mint: mint, Amount: amount})
	}
	sortTokenAmounts(out.RouteOutputs)
	return out
}

func traderSwap(tx *Transaction, byMint map[string]MintDelta, program string) *SwapFacts {
	out := &SwapFacts{
		Program:      program,
		InputTokens:  []TokenAmount{},
		OutputTokens: []TokenAmount{},
		View:         ViewTrader,
	}

	for mint, delta := range byMint {
		net := delta.Recv - delta.Sent
		eps := splDustThreshold
		if isSolMint(mint) {
			eps = solDustThreshold
		}
		if abs(net) <= eps {
			continue
		}
		switch {
		case isSolMint(mint) && net < 0:
			out.InputSol += -net
		case isSolMint(mint):
			out.OutputSol += net
		case net > 0:
			out.OutputTokens = append(out.OutputTokens, TokenAmount{Mint: mint, Amount: net})
		default:
			out.InputTokens = append(out.InputTokens, TokenAmount{Mint: mint, Amount: -net})
		}
	}
	sortTokenAmounts(out.InputTokens)
	sortTokenAmounts(out.OutputTokens)

	// The swap event's native input is a separate signal from the wallet's
	// net delta (protocol fee legs vs. balance movement); both represent SOL
	// leaving the wallet, so they add rather than replace each other.
	if ev := tx.Events.Swap; ev != nil && ev.NativeInput != nil {
		if sol := ev.NativeInput.Amount.Sol(); sol > 0 {
			out.InputSol += sol
		}
	}
	return out
}

// dominantLamports returns the most frequent amount in the histogram.
// Deterministic tie-break: higher count wins, then the smaller amount.
func dominantLamports(freq map[Lamports]int) (Lamports, int) {
	var best Lamports
	bestCount := 0
	for amount, count := range freq {
		if count > bestCount || (count == bestCount && amount < best) {
			best = amount
			bestCount = count
		}
	}
	return best, bestCount
}

// dominantAmount is the decimal-amount counterpart of dominantLamports with
// the same tie-break.
func dominantAmount(freq map[float64]int) (float64, int) {
	var best float64
	bestCount := 0
	for amount, count := range freq {
		if count > bestCount || (count == bestCount && amount < best) {
			best = amount
			bestCount = count
		}
	}
	return best, bestCount
}

// sortTokenAmounts orders token lists by mint so map iteration order never
// leaks into the output.
func sortTokenAmounts(list []TokenAmount) {
	sort.Slice(list, func(i, j int) bool { return list[i].Mint < list[j].Mint })
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
