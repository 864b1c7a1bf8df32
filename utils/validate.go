package utils

import "regexp"

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ValidEmail does a sanity check on an email address. Delivery is the
// real validation; this only rejects obvious garbage.
func ValidEmail(email string) bool {
	return emailRe.MatchString(email)
}
