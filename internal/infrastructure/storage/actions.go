package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// audit writes an audit entry for a change that is already committed. A
// failure is logged and does not undo the change.
func (s *Storage) audit(a UserAction) {
	if err := s.LogAction(a); err != nil {
		s.logger.Warn("failed to write audit log",
			"action", a.ActionType,
			"entity_type", a.EntityType,
			"error", err,
		)
	}
}

// LogAction appends an entry to the audit log
func (s *Storage) LogAction(a UserAction) error {
	var details any
	if len(a.Details) > 0 {
		b, err := json.Marshal(a.Details)
		if err != nil {
			return fmt.Errorf("failed to encode action details: %w", err)
		}
		details = string(b)
	}

	user := a.UserName
	if user == "" {
		user = "system"
	}

	_, err := s.db.Exec(`
	INSERT INTO user_actions (action_type, entity_type, entity_id, details, created_at, user_name)
	VALUES (?, ?, ?, ?, ?, ?)
	`, a.ActionType, a.EntityType, a.EntityID, details, s.now(), user)
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	return nil
}

// ListActions returns audit entries for an entity, newest first. An empty
// entityType lists every entry.
func (s *Storage) ListActions(entityType string, entityID int64, limit int) ([]UserAction, error) {
	if limit <= 0 {
		limit = defaultPaymentLimit
	}

	query := "SELECT id, action_type, entity_type, entity_id, details, created_at, user_name FROM user_actions"
	var args []any
	if entityType != "" {
		query += " WHERE entity_type = ? AND entity_id = ?"
		args = append(args, entityType, entityID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []UserAction
	for rows.Next() {
		var a UserAction
		var entityID sql.NullInt64
		var details sql.NullString
		if err := rows.Scan(&a.ID, &a.ActionType, &a.EntityType, &entityID, &details, &a.CreatedAt, &a.UserName); err != nil {
			return nil, err
		}
		if entityID.Valid {
			a.EntityID = &entityID.Int64
		}
		if details.Valid && details.String != "" {
			// Malformed details are left empty rather than failing the listing
			_ = json.Unmarshal([]byte(details.String), &a.Details)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
