package graph

import "strconv"

// FirstRevisionCode is the revision assigned to the first approved version of
// an entity. Construction registers start document revisions at 0.
const FirstRevisionCode = "0"

// NextNumberRevision computes the next human-facing revision code from the
// most recent approved revision. An empty or non-numeric input is treated as
// "no prior revision" and yields FirstRevisionCode; numeric codes increment
// by one. Pure function.
func NextNumberRevision(current string) string {
	if current == "" {
		return FirstRevisionCode
	}
	n, err := strconv.Atoi(current)
	if err != nil {
		return FirstRevisionCode
	}
	return strconv.Itoa(n + 1)
}
