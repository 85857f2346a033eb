package orders

type Status string

const (
	StatusPending         Status = "pending"
	StatusRequiresPayment Status = "requires_payment"
	StatusPaid            Status = "paid"
	StatusFailed          Status = "failed"
	StatusCanceled        Status = "canceled"
)

// Only paid is terminal. failed and canceled are soft: the processor can
// still report success for the same intent after either, and that charge
// must finalize. A self-transition is never valid, so repeats are no-ops.
var validNext = map[Status]map[Status]bool{
	StatusPending:         {StatusRequiresPayment: true, StatusPaid: true, StatusFailed: true, StatusCanceled: true},
	StatusRequiresPayment: {StatusPaid: true, StatusFailed: true, StatusCanceled: true},
	StatusFailed:          {StatusPaid: true, StatusCanceled: true},
	StatusCanceled:        {StatusPaid: true, StatusFailed: true},
	StatusPaid:            {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// AllowedFrom lists the states a CAS into to may start from.
func AllowedFrom(to Status) []Status {
	var out []Status
	for _, from := range []Status{StatusPending, StatusRequiresPayment, StatusPaid, StatusFailed, StatusCanceled} {
		if validNext[from][to] {
			out = append(out, from)
		}
	}
	return out
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}
