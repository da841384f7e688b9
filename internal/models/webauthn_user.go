package models

import (
	"database/sql"
	"encoding/binary"
	"fmt"

	"github.com/go-webauthn/webauthn/webauthn"
)

// PasskeyUser adapts a User and its passkeys to webauthn.User.
type PasskeyUser struct {
	User        *User
	credentials []webauthn.Credential
}

// LoadPasskeyUser reads the user's credentials for a ceremony.
func LoadPasskeyUser(db *sql.DB, u *User) (*PasskeyUser, error) {
	keys, err := ListPasskeys(db, u.ID)
	if err != nil {
		return nil, fmt.Errorf("models: load passkey user %d: %w", u.ID, err)
	}
	pu := &PasskeyUser{User: u, credentials: make([]webauthn.Credential, len(keys))}
	for i, k := range keys {
		pu.credentials[i] = k.Credential()
	}
	return pu, nil
}

// WebAuthnID is the opaque user handle: the big-endian user id.
func (p *PasskeyUser) WebAuthnID() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(p.User.ID))
	return buf
}

func (p *PasskeyUser) WebAuthnName() string { return p.User.Username }

func (p *PasskeyUser) WebAuthnDisplayName() string { return p.User.DisplayName() }

func (p *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return p.credentials }

// UserIDFromHandle reverses WebAuthnID. Short handles yield 0.
func UserIDFromHandle(handle []byte) int64 {
	if len(handle) < 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(handle))
}
