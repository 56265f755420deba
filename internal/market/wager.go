package market

// WagerKey identifies the single wager a participant may hold in a round.
type WagerKey struct {
	RoundID     string
	Participant string
}

// Wager is one participant's stake on a position within a round. Amount is
// fixed at creation; Claimed flips false→true exactly once, by whichever
// settlement path reaches the wager first.
type Wager struct {
	RoundID     string
	Participant string
	Position    Position
	Amount      int64
	Claimed     bool
}

func (w *Wager) key() WagerKey {
	return WagerKey{RoundID: w.RoundID, Participant: w.Participant}
}

func (w *Wager) clone() *Wager {
	c := *w
	return &c
}
