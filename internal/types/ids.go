package types

import "github.com/google/uuid"

// NewLocalID identifies a rule row that is not persisted yet (its AddID or
// CopyID). It never reaches the database.
func NewLocalID() string {
	return newV7()
}

// NewAlertID is time ordered so alert history inserts stay clustered by
// arrival.
func NewAlertID() string {
	return newV7()
}

// newV7 panics only on a broken random source.
func newV7() string {
	return uuid.Must(uuid.NewV7()).String()
}
