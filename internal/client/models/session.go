package models

import "github.com/dmitrijs2005/shopkeeper/internal/tables"

// Session is the credential the client acts under.
type Session struct {
	UserName    string
	UserID      string
	Role        tables.Role
	AccessToken string
	// Offline sessions were verified against the local credential cache and
	// carry no access token. They cannot sync.
	Offline bool
}

// Caller returns the identity the session represents.
func (s *Session) Caller() tables.Caller {
	return tables.Caller{UserID: s.UserID, Role: s.Role}
}
