package facts

// CollectMints returns the distinct mint addresses referenced by a
// transaction: token transfers plus the token legs of its swap event, if any.
// Callers should treat the result as an unordered set.
func CollectMints(tx *Transaction) []string {
	if tx == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var mints []string
	add := func(mint string) {
		if mint == "" {
			return
		}
		if _, ok := seen[mint]; ok {
			return
		}
		seen[mint] = struct{}{}
		mints = append(mints, mint)
	}

	for _, t := range tx.TokenTransfers {
		add(t.Mint)
	}
	if ev := tx.Events.Swap; ev != nil {
		for _, o := range ev.TokenOutputs {
			add(o.Mint)
		}
		for _, i := range ev.TokenInputs {
			add(i.Mint)
		}
	}
	return mints
}
