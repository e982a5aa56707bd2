package source

import "time"

// anyDeadline returns a deadline far enough in the future to never matter
// for tests that don't exercise timeout behaviour directly.
func anyDeadline() time.Time {
	return time.Now().Add(time.Second)
}
