package facts

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// LamportsPerSol is the number of base units in one SOL.
const LamportsPerSol = 1_000_000_000

// Transaction is an enhanced Solana transaction as returned by the indexing
// API. This is our domain model for the enrichment engine; it is decoded
// directly from the upstream JSON and treated as read-only.
//
// Every field is optional in practice: absent arrays decode to nil slices,
// absent numbers to zero. The engine never fails on a missing field.
type Transaction struct {
	Description      string           `json:"description,omitempty"`
	Type             string           `json:"type"`
	Source           string           `json:"source,omitempty"`
	Fee              Lamports         `json:"fee"`
	FeePayer         string           `json:"feePayer"`
	Signature        string           `json:"signature"`
	Slot             int64            `json:"slot"`
	Timestamp        int64            `json:"timestamp"`
	NativeTransfers  []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers   []TokenTransfer  `json:"tokenTransfers"`
	AccountData      []AccountData    `json:"accountData"`
	TransactionError json.RawMessage  `json:"transactionError,omitempty"`
	Instructions     []Instruction    `json:"instructions"`
	Events           Events           `json:"events"`
}

// Failed reports whether the transaction carries an error from upstream.
func (t *Transaction) Failed() bool {
	return len(t.TransactionError) > 0 && !bytes.Equal(t.TransactionError, []byte("null"))
}

// NativeTransfer is a movement of native SOL between accounts, in lamports.
type NativeTransfer struct {
	FromUserAccount string   `json:"fromUserAccount"`
	ToUserAccount   string   `json:"toUserAccount"`
	Amount          Lamports `json:"amount"`
}

// TokenTransfer is a movement of an SPL token. TokenAmount is already
// decimalized by the upstream source.
type TokenTransfer struct {
	FromUserAccount  string  `json:"fromUserAccount"`
	ToUserAccount    string  `json:"toUserAccount"`
	FromTokenAccount string  `json:"fromTokenAccount"`
	ToTokenAccount   string  `json:"toTokenAccount"`
	TokenAmount      float64 `json:"tokenAmount"`
	Mint             string  `json:"mint"`
}

// RawTokenAmount is an undecimalized token amount plus its decimals.
type RawTokenAmount struct {
	TokenAmount string `json:"tokenAmount"`
	Decimals    int    `json:"decimals"`
}

// TokenBalanceChange records a per-token-account balance delta.
type TokenBalanceChange struct {
	UserAccount    string         `json:"userAccount"`
	TokenAccount   string         `json:"tokenAccount"`
	Mint           string         `json:"mint"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

// AccountData holds per-account balance changes within the transaction.
type AccountData struct {
	Account             string               `json:"account"`
	NativeBalanceChange int64                `json:"nativeBalanceChange"`
	TokenBalanceChanges []TokenBalanceChange `json:"tokenBalanceChanges"`
}

// InnerInstruction is an instruction invoked by another instruction.
type InnerInstruction struct {
	Accounts  []string `json:"accounts"`
	Data      string   `json:"data"`
	ProgramID string   `json:"programId"`
}

// Instruction is a top-level instruction with its nested inner instructions.
type Instruction struct {
	Accounts          []string           `json:"accounts"`
	Data              string             `json:"data"`
	ProgramID         string             `json:"programId"`
	InnerInstructions []InnerInstruction `json:"innerInstructions"`
}

// Events holds the typed event payloads attached to an enhanced transaction.
// Only the swap event is consumed by this engine.
type Events struct {
	Swap *SwapEvent `json:"swap,omitempty"`
}

// SwapEvent is the parsed swap event: native legs in lamports, token legs as
// raw amounts with decimals.
type SwapEvent struct {
	NativeInput  *NativeSwapLeg `json:"nativeInput,omitempty"`
	NativeOutput *NativeSwapLeg `json:"nativeOutput,omitempty"`
	TokenInputs  []SwapTokenLeg `json:"tokenInputs"`
	TokenOutputs []SwapTokenLeg `json:"tokenOutputs"`
	TokenFees    []SwapTokenLeg `json:"tokenFees"`
	NativeFees   []NativeFee    `json:"nativeFees"`
	InnerSwaps   []InnerSwap    `json:"innerSwaps"`
}

// NativeSwapLeg is a native-SOL leg of a swap event.
type NativeSwapLeg struct {
	Account string   `json:"account"`
	Amount  Lamports `json:"amount"`
}

// SwapTokenLeg is a token leg of a swap event.
type SwapTokenLeg struct {
	UserAccount    string         `json:"userAccount"`
	TokenAccount   string         `json:"tokenAccount"`
	Mint           string         `json:"mint"`
	RawTokenAmount RawTokenAmount `json:"rawTokenAmount"`
}

// NativeFee is a native-SOL fee leg of a swap event.
type NativeFee struct {
	Account string   `json:"account"`
	Amount  Lamports `json:"amount"`
}

// InnerSwap is one hop of a routed swap.
type InnerSwap struct {
	TokenInputs  []TokenTransfer  `json:"tokenInputs"`
	TokenOutputs []TokenTransfer  `json:"tokenOutputs"`
	TokenFees    []TokenTransfer  `json:"tokenFees"`
	NativeFees   []NativeTransfer `json:"nativeFees"`
	ProgramInfo  ProgramInfo      `json:"programInfo"`
}

// ProgramInfo identifies the program behind an inner swap hop.
type ProgramInfo struct {
	Source          string `json:"source"`
	Account         string `json:"account"`
	ProgramName     string `json:"programName"`
	InstructionName string `json:"instructionName"`
}

// Lamports is a base-unit amount. The upstream API is inconsistent about
// encoding these: most fields are JSON numbers, but swap event legs arrive as
// numeric strings. Decoding never fails; malformed values degrade to zero so
// a single bad field cannot sink the whole record.
type Lamports int64

// Sol converts the amount to decimal SOL.
func (l Lamports) Sol() float64 {
	return float64(l) / LamportsPerSol
}

// UnmarshalJSON accepts a JSON number, a numeric string, or null.
func (l *Lamports) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	if s == "" || s == "null" {
		*l = 0
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*l = Lamports(n)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*l = Lamports(f)
		return nil
	}
	*l = 0
	return nil
}
