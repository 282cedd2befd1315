package facts

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Well-known Solana program IDs.
var (
	// SystemProgramID is the native SOL transfer program.
	SystemProgramID = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// TokenProgramID is the SPL Token program.
	TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022).
	Token2022ProgramID = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// AssociatedTokenProgramID creates associated token accounts.
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// ComputeBudgetProgramID sets compute limits and priority fees.
	ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
)

// WSOLMint is the wrapped-SOL mint address.
const WSOLMint = "So11111111111111111111111111111111111111112"

// ataRentRefundLamports is the rent-exempt deposit refunded when an
// associated token account is closed. Detecting ATA closure by matching this
// exact amount is a heuristic, not a ledger-exact check.
const ataRentRefundLamports = 2_039_280

// sysvarsOrPrograms is the denylist of addresses that are never counted as
// wallets or counterparties.
var sysvarsOrPrograms = map[string]struct{}{
	SystemProgramID.String():          {},
	TokenProgramID.String():           {},
	AssociatedTokenProgramID.String(): {},
	ComputeBudgetProgramID.String():   {},
}

// infraPrograms resolve to plumbing rather than a protocol; they are hidden
// from top-program rankings unless nothing else qualifies.
var infraPrograms = map[string]struct{}{
	"System program":           {},
	"SPL Token Program":        {},
	"Token-2022":               {},
	"Associated Token Account": {},
	"Compute Budget":           {},
}

// canonicalNames maps upstream source labels to human-readable protocol names.
var canonicalNames = map[string]string{
	"JUPITER":                "Jupiter",
	"ORCA":                   "Orca",
	"RAYDIUM":                "Raydium",
	"DRIFT":                  "Drift",
	"TENSOR":                 "Tensor",
	"MAGIC_EDEN":             "Magic Eden",
	"MAGICEDEN":              "Magic Eden",
	"PUMPFUN":                "Pump.fun",
	"PUMP_FUN":               "Pump.fun",
	"PUMP_AMM":               "Pump.fun",
	"METAPLEX":               "Metaplex",
	"SOLANA_PROGRAM_LIBRARY": "SPL Token Program",
	"SYSTEM_PROGRAM":         "System program",
}

// knownProgramIDs maps on-chain program IDs to protocol names. Used as a
// fallback when the upstream source label resolves to nothing useful.
var knownProgramIDs = map[string]string{
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  "Jupiter",
	"whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc":  "Orca",
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": "Raydium",
	"CAMMCzo5YL8w4VFF8KVHrK22GGUsp5VTaW7grrKgrWqK": "Raydium",
	"dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH":  "Drift",
	"TSWAPaqyCSx2KABk68Shruf4rp7CxcNi8hAsbdwmHbN":  "Tensor",
	"M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K":  "Magic Eden",
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  "Pump.fun",
	"pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA":  "Pump.fun",
	"metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s":  "Metaplex",
	SystemProgramID.String():                       "System program",
	TokenProgramID.String():                        "SPL Token Program",
	Token2022ProgramID.String():                    "Token-2022",
	AssociatedTokenProgramID.String():              "Associated Token Account",
	ComputeBudgetProgramID.String():                "Compute Budget",
}

// CanonicalProgramName maps an upstream source label to a human-readable
// protocol name. Unmapped labels pass through unchanged; an empty label
// yields an empty name.
func CanonicalProgramName(source string) string {
	if source == "" {
		return ""
	}
	if name, ok := canonicalNames[strings.ToUpper(source)]; ok {
		return name
	}
	return source
}

// ProgramNameForID resolves an on-chain program ID against the known-program
// table. Returns "" when the ID is not recognized.
func ProgramNameForID(programID string) string {
	return knownProgramIDs[programID]
}

// IsInfraProgram reports whether a resolved program name is infrastructure
// plumbing rather than a user-facing protocol.
func IsInfraProgram(name string) bool {
	_, ok := infraPrograms[name]
	return ok
}

func isSolMint(mint string) bool {
	return mint == WSOLMint
}

func isDenylisted(addr string) bool {
	_, ok := sysvarsOrPrograms[addr]
	return ok
}
