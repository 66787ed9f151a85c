package ledger

// undoLog is an append-only log of reverse closures. Every state mutation
// inside an operation records its inverse; on failure the log is unwound
// in reverse order so the outer call is all-or-nothing, and on success the
// recorded entries are discarded.
type undoLog []func()

func (u *undoLog) record(fn func()) {
	*u = append(*u, fn)
}

// revertTo unwinds everything recorded since mark, newest first.
func (u *undoLog) revertTo(mark int) {
	for i := len(*u) - 1; i >= mark; i-- {
		(*u)[i]()
	}
	*u = (*u)[:mark]
}

// discardTo commits everything recorded since mark.
func (u *undoLog) discardTo(mark int) {
	*u = (*u)[:mark]
}
