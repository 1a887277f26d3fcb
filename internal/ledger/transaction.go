package ledger

import "time"

// Transaction is one booked transaction. Amount is signed: negative values
// leave the main node, positive values flow into it.
type Transaction struct {
	ID       string  `json:"id"`
	Date     int64   `json:"date"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Category string  `json:"category"`
	Account  string  `json:"account"`
}

func (t Transaction) Time() time.Time {
	return time.Unix(t.Date, 0)
}

// Summary holds metadata about a set of transactions.
type Summary struct {
	Accounts []string
	Start    time.Time
	End      time.Time
	Count    int
}

// Summarize computes the covered date range and the distinct accounts in
// first-seen order. An empty set spans no time at all, starting and ending
// at now.
//
// The range ends at the last transaction, not at now: a stale export would
// otherwise count the months since it was taken and shrink every per month
// figure.
func Summarize(transactions []Transaction, now time.Time) Summary {
	s := Summary{Start: now, End: now, Count: len(transactions)}
	seen := make(map[string]bool)
	for i, tx := range transactions {
		at := tx.Time()
		if i == 0 {
			s.Start, s.End = at, at
		}
		if at.Before(s.Start) {
			s.Start = at
		}
		if at.After(s.End) {
			s.End = at
		}
		if tx.Account == "" || seen[tx.Account] {
			continue
		}
		seen[tx.Account] = true
		s.Accounts = append(s.Accounts, tx.Account)
	}
	return s
}

// Months is the number of calendar months between the first and the last
// transaction, ignoring days.
func (s Summary) Months() int {
	start := s.Start.Local()
	end := s.End.Local()
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}

// ScalingFactor is the divisor used to show per month figures.
func (s Summary) ScalingFactor() float64 {
	months := s.Months()
	if months < 1 {
		return 1
	}
	return float64(months)
}
