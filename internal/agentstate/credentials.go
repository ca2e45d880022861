package agentstate

import (
	"fmt"
	"time"
)

// SetCredential upserts a key/value secret.
func (in *Instance) SetCredential(key, value string) (*Credential, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	_, err := in.db.Exec(`
		INSERT INTO credentials (key, value, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("set credential: %w", err)
	}
	return in.getCredentialLocked(key)
}

func (in *Instance) getCredentialLocked(key string) (*Credential, error) {
	row := in.db.QueryRow(`SELECT key, value, created_at, updated_at FROM credentials WHERE key=?`, key)
	var c Credential
	var createdAt, updatedAt string
	if err := row.Scan(&c.Key, &c.Value, &createdAt, &updatedAt); err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	c.CreatedAt = t
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		c.UpdatedAt = t
	}
	c.MaskedPreview = maskedPreview(c.Value)
	return &c, nil
}

// maskedPreview shows the first 4 and last 4 characters of a secret
// when it's long enough to do so safely, else a flat mask.
func maskedPreview(value string) string {
	if len(value) > 12 {
		return value[:4] + "..." + value[len(value)-4:]
	}
	return "****"
}

// ListCredentials returns every credential with its value masked.
func (in *Instance) ListCredentials() ([]*Credential, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	rows, err := in.db.Query(`SELECT key, value, created_at, updated_at FROM credentials ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var out []*Credential
	for rows.Next() {
		var c Credential
		var createdAt, updatedAt string
		if err := rows.Scan(&c.Key, &c.Value, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		c.CreatedAt = t
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			c.UpdatedAt = t
		}
		c.MaskedPreview = maskedPreview(c.Value)
		c.Value = ""
		out = append(out, &c)
	}
	return out, rows.Err()
}

// CredentialBundle returns every key mapped to its plaintext value,
// for session injection into a freshly spawned agent process.
func (in *Instance) CredentialBundle() (map[string]string, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	rows, err := in.db.Query(`SELECT key, value FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("credential bundle: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}
