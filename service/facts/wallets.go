package facts

// tokenAccountsInTx returns the token-account pubkeys referenced by a single
// transaction's token transfers.
func tokenAccountsInTx(tx *Transaction) map[string]struct{} {
	accounts := make(map[string]struct{})
	for _, t := range tx.TokenTransfers {
		if t.FromTokenAccount != "" {
			accounts[t.FromTokenAccount] = struct{}{}
		}
		if t.ToTokenAccount != "" {
			accounts[t.ToTokenAccount] = struct{}{}
		}
	}
	return accounts
}

// TokenAccountSet builds the set of token-account pubkeys seen anywhere in a
// batch of transactions: token transfer endpoints plus accountData token
// balance changes. A token account's identity can only be established by
// scanning the whole batch, so counterparty classification must use this set
// rather than a per-transaction view.
func TokenAccountSet(txs []*Transaction) map[string]struct{} {
	accounts := make(map[string]struct{})
	for _, tx := range txs {
		if tx == nil {
			continue
		}
		for _, t := range tx.TokenTransfers {
			if t.FromTokenAccount != "" {
				accounts[t.FromTokenAccount] = struct{}{}
			}
			if t.ToTokenAccount != "" {
				accounts[t.ToTokenAccount] = struct{}{}
			}
		}
		for _, ad := range tx.AccountData {
			for _, ch := range ad.TokenBalanceChanges {
				if ch.TokenAccount != "" {
					accounts[ch.TokenAccount] = struct{}{}
				}
			}
		}
	}
	return accounts
}

// CountWallets counts the distinct wallet addresses touched by a transaction:
// the fee payer, every token-transfer endpoint, and every native-transfer
// endpoint that is neither a token account (from this transaction) nor a
// well-known program address.
func CountWallets(tx *Transaction) int {
	wallets := make(map[string]struct{})
	if tx.FeePayer != "" {
		wallets[tx.FeePayer] = struct{}{}
	}

	tokenAccounts := tokenAccountsInTx(tx)
	for _, t := range tx.TokenTransfers {
		if t.FromUserAccount != "" {
			wallets[t.FromUserAccount] = struct{}{}
		}
		if t.ToUserAccount != "" {
			wallets[t.ToUserAccount] = struct{}{}
		}
	}

	for _, n := range tx.NativeTransfers {
		if from := n.FromUserAccount; from != "" {
			if _, isTokenAcct := tokenAccounts[from]; !isTokenAcct && !isDenylisted(from) {
				wallets[from] = struct{}{}
			}
		}
		if to := n.ToUserAccount; to != "" {
			if _, isTokenAcct := tokenAccounts[to]; !isTokenAcct && !isDenylisted(to) {
				wallets[to] = struct{}{}
			}
		}
	}
	return len(wallets)
}

// isCounterparty reports whether an address qualifies as a counterparty for
// cross-transaction aggregation: not a program, not a token account anywhere
// in the batch, and not the wallet under analysis.
func isCounterparty(addr, mainWallet string, tokenAccounts map[string]struct{}) bool {
	if addr == "" || addr == mainWallet {
		return false
	}
	if isDenylisted(addr) {
		return false
	}
	_, isTokenAcct := tokenAccounts[addr]
	return !isTokenAcct
}

// counterpartiesInTx collects the distinct counterparty addresses touched by
// one transaction, so that each transaction contributes at most one count per
// counterparty regardless of how many transfer legs mention it. When a main
// wallet is known, directional touches are recorded too: sent means the main
// wallet was the source of a leg reaching the counterparty, recv the reverse.
type txCounterparties struct {
	touched map[string]struct{}
	sent    map[string]struct{}
	recv    map[string]struct{}
}

func collectTxCounterparties(tx *Transaction, mainWallet string, tokenAccounts map[string]struct{}) txCounterparties {
	out := txCounterparties{
		touched: make(map[string]struct{}),
		sent:    make(map[string]struct{}),
		recv:    make(map[string]struct{}),
	}
	record := func(from, to string) {
		if isCounterparty(from, mainWallet, tokenAccounts) {
			out.touched[from] = struct{}{}
			if mainWallet != "" && to == mainWallet {
				out.recv[from] = struct{}{}
			}
		}
		if isCounterparty(to, mainWallet, tokenAccounts) {
			out.touched[to] = struct{}{}
			if mainWallet != "" && from == mainWallet {
				out.sent[to] = struct{}{}
			}
		}
	}
	for _, n := range tx.NativeTransfers {
		record(n.FromUserAccount, n.ToUserAccount)
	}
	for _, t := range tx.TokenTransfers {
		record(t.FromUserAccount, t.ToUserAccount)
	}
	return out
}
