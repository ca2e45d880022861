package agentstate

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// RecordHeartbeat upserts last_heartbeat and appends a ring-buffered
// log entry, retaining at most the most recent heartbeatLogCap
// entries.
func (in *Instance) RecordHeartbeat() error {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	log, err := in.heartbeatLogLocked()
	if err != nil {
		return err
	}
	log = append(log, HeartbeatEntry{At: now})
	if len(log) > heartbeatLogCap {
		log = log[len(log)-heartbeatLogCap:]
	}
	logJSON, _ := json.Marshal(log)

	_, err = in.db.Exec(`
		INSERT INTO heartbeat (id, last_heartbeat, log) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_heartbeat = excluded.last_heartbeat, log = excluded.log`,
		now.Format(time.RFC3339), string(logJSON))
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

func (in *Instance) heartbeatLogLocked() ([]HeartbeatEntry, error) {
	row := in.db.QueryRow(`SELECT log FROM heartbeat WHERE id = 1`)
	var raw string
	if err := row.Scan(&raw); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get heartbeat log: %w", err)
	}
	var out []HeartbeatEntry
	_ = json.Unmarshal([]byte(raw), &out)
	return out, nil
}

// HeartbeatStatus reports the derived health of the agent.
type HeartbeatStatus struct {
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
	IsHealthy     bool       `json:"isHealthy"`
}

// GetHeartbeatStatus derives isHealthy from how long it has been
// since the last recorded heartbeat.
func (in *Instance) GetHeartbeatStatus() (*HeartbeatStatus, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	row := in.db.QueryRow(`SELECT last_heartbeat FROM heartbeat WHERE id = 1`)
	var raw sql.NullString
	if err := row.Scan(&raw); err == sql.ErrNoRows {
		return &HeartbeatStatus{IsHealthy: false}, nil
	} else if err != nil {
		return nil, fmt.Errorf("get heartbeat status: %w", err)
	}
	if !raw.Valid {
		return &HeartbeatStatus{IsHealthy: false}, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return nil, fmt.Errorf("parse last_heartbeat: %w", err)
	}
	return &HeartbeatStatus{LastHeartbeat: &t, IsHealthy: time.Since(t) < stallThreshold}, nil
}

// RegisterShadow marks a peer agent as the registered shadow for this
// one.
func (in *Instance) RegisterShadow(shadowAgentID string) (*Shadow, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	_, err := in.db.Exec(`
		INSERT INTO shadow (id, shadow_agent_id, registered_at, active) VALUES (1, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET shadow_agent_id = excluded.shadow_agent_id, registered_at = excluded.registered_at`,
		shadowAgentID, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("register shadow: %w", err)
	}
	return in.getShadowLocked()
}

// BecomeShadow marks the registered shadow active, watching but not
// yet driving.
func (in *Instance) BecomeShadow() (*Shadow, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if _, err := in.db.Exec(`UPDATE shadow SET active = 1 WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("become shadow: %w", err)
	}
	return in.getShadowLocked()
}

// Takeover marks the moment a shadow takes full control.
func (in *Instance) Takeover() (*Shadow, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	now := time.Now()
	if _, err := in.db.Exec(`UPDATE shadow SET took_over_at = ? WHERE id = 1`, now.Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("takeover: %w", err)
	}
	return in.getShadowLocked()
}

func (in *Instance) getShadowLocked() (*Shadow, error) {
	row := in.db.QueryRow(`SELECT shadow_agent_id, registered_at, active, took_over_at FROM shadow WHERE id = 1`)
	var sh Shadow
	var shadowAgentID, registeredAt, tookOverAt sql.NullString
	var active int
	err := row.Scan(&shadowAgentID, &registeredAt, &active, &tookOverAt)
	if err == sql.ErrNoRows {
		return &Shadow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shadow: %w", err)
	}
	if shadowAgentID.Valid {
		sh.ShadowAgentID = &shadowAgentID.String
	}
	if registeredAt.Valid {
		if t, err := time.Parse(time.RFC3339, registeredAt.String); err == nil {
			sh.RegisteredAt = &t
		}
	}
	if tookOverAt.Valid {
		if t, err := time.Parse(time.RFC3339, tookOverAt.String); err == nil {
			sh.TookOverAt = &t
		}
	}
	sh.Active = active != 0
	return &sh, nil
}
