// Package journal provides the undo log that keeps multi-component vault
// operations all-or-nothing. Components record an undo closure for every
// in-memory mutation made while a scope is open; reverting a scope replays
// its closures newest first.
package journal

// Journal is an undo log with nestable scopes. A nil *Journal is valid and
// records nothing. It is not safe for concurrent use.
type Journal struct {
	undo  []func()
	marks []int
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{}
}

// Begin opens a scope.
func (j *Journal) Begin() {
	if j == nil {
		return
	}
	j.marks = append(j.marks, len(j.undo))
}

// Active reports whether a scope is open.
func (j *Journal) Active() bool {
	return j != nil && len(j.marks) > 0
}

// Record appends an undo closure to the innermost scope.
func (j *Journal) Record(undo func()) {
	if !j.Active() {
		return
	}
	j.undo = append(j.undo, undo)
}

// Commit closes the innermost scope and keeps its effects. Its undo entries
// move to the enclosing scope, if any.
func (j *Journal) Commit() {
	if !j.Active() {
		return
	}
	j.marks = j.marks[:len(j.marks)-1]
	if len(j.marks) == 0 {
		j.undo = j.undo[:0]
	}
}

// Revert undoes every mutation recorded in the innermost scope and closes it.
func (j *Journal) Revert() {
	if !j.Active() {
		return
	}
	mark := j.marks[len(j.marks)-1]
	for i := len(j.undo) - 1; i >= mark; i-- {
		j.undo[i]()
		j.undo[i] = nil
	}
	j.undo = j.undo[:mark]
	j.marks = j.marks[:len(j.marks)-1]
}

// Run executes fn in its own scope, reverting it when fn fails.
func (j *Journal) Run(fn func() error) error {
	j.Begin()
	if err := fn(); err != nil {
		j.Revert()
		return err
	}
	j.Commit()
	return nil
}
