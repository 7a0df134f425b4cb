// Package models contains server-side persistence models that are not
// syncable records.
package models

import "time"

// Account is a staff login. The password never reaches the server: only the
// per-account salt and the verifier derived from it are stored.
type Account struct {
	ID        string
	UserName  string
	Salt      []byte
	Verifier  []byte
	Role      string
	CreatedAt time.Time
}

// PresignedUpload is a short-lived upload target for a product image.
type PresignedUpload struct {
	Key string
	URL string
}
