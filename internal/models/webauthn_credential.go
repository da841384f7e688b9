package models

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// Passkey is a stored WebAuthn credential.
type Passkey struct {
	ID              int64
	UserID          int64
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transport       []protocol.AuthenticatorTransport
	SignCount       uint32
	CloneWarning    bool
	Attachment      protocol.AuthenticatorAttachment
	AAGUID          []byte
	UserPresent     bool
	UserVerified    bool
	BackupEligible  bool
	BackupState     bool
	Label           sql.NullString
	CreatedAt       time.Time
}

// Credential converts the stored row into the go-webauthn credential type.
func (p *Passkey) Credential() webauthn.Credential {
	return webauthn.Credential{
		ID:              p.CredentialID,
		PublicKey:       p.PublicKey,
		AttestationType: p.AttestationType,
		Transport:       p.Transport,
		Flags: webauthn.CredentialFlags{
			UserPresent:    p.UserPresent,
			UserVerified:   p.UserVerified,
			BackupEligible: p.BackupEligible,
			BackupState:    p.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:       p.AAGUID,
			SignCount:    p.SignCount,
			CloneWarning: p.CloneWarning,
			Attachment:   p.Attachment,
		},
	}
}

const passkeyColumns = `id, user_id, credential_id, public_key, attestation_type, transport,
	sign_count, clone_warning, attachment, aaguid,
	flags_user_present, flags_user_verified, flags_backup_eligible, flags_backup_state,
	label, created_at`

func scanPasskey(row interface{ Scan(...any) error }) (*Passkey, error) {
	p := &Passkey{}
	var transport sql.NullString
	if err := row.Scan(
		&p.ID, &p.UserID, &p.CredentialID, &p.PublicKey, &p.AttestationType, &transport,
		&p.SignCount, &p.CloneWarning, &p.Attachment, &p.AAGUID,
		&p.UserPresent, &p.UserVerified, &p.BackupEligible, &p.BackupState,
		&p.Label, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	if transport.Valid && transport.String != "" {
		if err := json.Unmarshal([]byte(transport.String), &p.Transport); err != nil {
			return nil, fmt.Errorf("models: unmarshal passkey transport: %w", err)
		}
	}
	return p, nil
}

// CreatePasskey stores a credential produced by a finished registration ceremony.
func CreatePasskey(db *sql.DB, userID int64, cred *webauthn.Credential, label string) (*Passkey, error) {
	var transport sql.NullString
	if len(cred.Transport) > 0 {
		b, err := json.Marshal(cred.Transport)
		if err != nil {
			return nil, fmt.Errorf("models: marshal passkey transport: %w", err)
		}
		transport = sql.NullString{String: string(b), Valid: true}
	}

	p, err := scanPasskey(db.QueryRow(`
		INSERT INTO webauthn_credentials (
			user_id, credential_id, public_key, attestation_type, transport,
			sign_count, clone_warning, attachment, aaguid,
			flags_user_present, flags_user_verified, flags_backup_eligible, flags_backup_state,
			label
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+passkeyColumns,
		userID, cred.ID, cred.PublicKey, cred.AttestationType, transport,
		cred.Authenticator.SignCount, boolToInt(cred.Authenticator.CloneWarning),
		string(cred.Authenticator.Attachment), cred.Authenticator.AAGUID,
		boolToInt(cred.Flags.UserPresent), boolToInt(cred.Flags.UserVerified),
		boolToInt(cred.Flags.BackupEligible), boolToInt(cred.Flags.BackupState),
		nullString(label),
	))
	if err != nil {
		return nil, fmt.Errorf("models: create passkey for user %d: %w", userID, err)
	}
	return p, nil
}

// ListPasskeys returns the user's passkeys, newest first.
func ListPasskeys(db *sql.DB, userID int64) ([]*Passkey, error) {
	rows, err := db.Query(`SELECT `+passkeyColumns+` FROM webauthn_credentials WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("models: list passkeys for user %d: %w", userID, err)
	}
	defer rows.Close()

	var list []*Passkey
	for rows.Next() {
		p, err := scanPasskey(rows)
		if err != nil {
			return nil, fmt.Errorf("models: scan passkey: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// GetUserByCredentialID resolves the owner of a credential for discoverable login.
func GetUserByCredentialID(db *sql.DB, credentialID []byte) (*User, error) {
	u, err := scanUser(db.QueryRow(`
		SELECT `+userColumns+` FROM users
		WHERE id = (SELECT user_id FROM webauthn_credentials WHERE credential_id = ?)`, credentialID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get user by credential id: %w", err)
	}
	return u, nil
}

// UpdatePasskeySignCount records the authenticator counter after a login.
func UpdatePasskeySignCount(db *sql.DB, credentialID []byte, signCount uint32, cloneWarning bool) error {
	if _, err := db.Exec(`UPDATE webauthn_credentials SET sign_count = ?, clone_warning = ? WHERE credential_id = ?`,
		signCount, boolToInt(cloneWarning), credentialID); err != nil {
		return fmt.Errorf("models: update passkey sign count: %w", err)
	}
	return nil
}

// DeletePasskey removes one of the user's passkeys.
func DeletePasskey(db *sql.DB, userID, id int64) error {
	result, err := db.Exec(`DELETE FROM webauthn_credentials WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("models: delete passkey %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
