package funding

// Strategy is the access pattern Reset uses to walk the contributor list.
// Every strategy leaves the ledger in the same end state.
type Strategy interface {
	Name() string
	clear(l *Ledger)
}

var (
	// DirectReset reads the list length and each element from the ledger
	// on every iteration.
	DirectReset Strategy = directReset{}
	// SnapshotReset caches the list and its length, then walks it once.
	SnapshotReset Strategy = snapshotReset{}
)

type directReset struct{}

func (directReset) Name() string { return "direct" }

func (directReset) clear(l *Ledger) {
	for i := 0; i < len(l.contributors); i++ {
		delete(l.amounts, l.contributors[i])
	}
}

type snapshotReset struct{}

func (snapshotReset) Name() string { return "snapshot" }

func (snapshotReset) clear(l *Ledger) {
	list := l.contributors
	n := len(list)
	for i := 0; i < n; i++ {
		delete(l.amounts, list[i])
	}
}

// StrategyByName resolves "direct" or "snapshot".
func StrategyByName(name string) (Strategy, bool) {
	switch name {
	case "direct":
		return DirectReset, true
	case "snapshot":
		return SnapshotReset, true
	default:
		return nil, false
	}
}
