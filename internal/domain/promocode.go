package domain

import "time"

// Promocode is one ledger row: a code that has been extracted from a post and
// handed to the claim pipeline. Rows are append-only; a row existing for a
// post URL means that post has been handled and must not be claimed again.
type Promocode struct {
	Code      string    `db:"code"       json:"code"`
	PostURL   string    `db:"post_url"   json:"post_url"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClaimStatus is the terminal state of one redemption attempt.
type ClaimStatus string

const (
	ClaimSuccess ClaimStatus = "success"
	ClaimError   ClaimStatus = "error"
)

// ClaimOutcome is the result of driving one claim attempt to a terminal
// state. It is transient: logged and announced, never persisted.
type ClaimOutcome struct {
	Status ClaimStatus `json:"status"`
	// Message is the site's toast text, or the failure description
	Message string `json:"message"`
}

// Succeeded reports whether the site accepted the code.
func (o ClaimOutcome) Succeeded() bool {
	return o.Status == ClaimSuccess
}
