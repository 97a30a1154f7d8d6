package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"batch-renamer/internal/logging"
)

// SetState stores a session value, recording its type: strings, integers,
// floats and bools are stored as such, anything else as JSON.
func (d *Database) SetState(ctx context.Context, key string, value any) error {
	if key == "" {
		return errors.New("session key must not be empty")
	}

	raw, typ, err := encodeState(value)
	if err != nil {
		return fmt.Errorf("session %s: %w", key, err)
	}

	_, err = d.exec(ctx, "set_state", `
		INSERT INTO session_state (key, value, value_type, updated_at)
		VALUES (?, ?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			updated_at = excluded.updated_at
	`, key, raw, string(typ))
	return err
}

func encodeState(value any) (string, StateType, error) {
	switch v := value.(type) {
	case string:
		return v, StateTypeString, nil
	case bool:
		return strconv.FormatBool(v), StateTypeBool, nil
	case int:
		return strconv.FormatInt(int64(v), 10), StateTypeInt, nil
	case int32:
		return strconv.FormatInt(int64(v), 10), StateTypeInt, nil
	case int64:
		return strconv.FormatInt(v, 10), StateTypeInt, nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), StateTypeInt, nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), StateTypeInt, nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), StateTypeFloat, nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), StateTypeFloat, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", "", err
		}
		return string(b), StateTypeJSON, nil
	}
}

// State returns the raw stored entry for key.
func (d *Database) State(ctx context.Context, key string) (StateValue, bool) {
	if !d.readable("get_state") {
		return StateValue{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var sv StateValue
	var typ string
	var updated int64
	err := d.db.QueryRowContext(ctx,
		"SELECT value, value_type, updated_at FROM session_state WHERE key = ?", key).
		Scan(&sv.Value, &typ, &updated)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Debug("get state %s: %v", key, classify("get_state", err))
		}
		return StateValue{}, false
	}
	sv.Type = StateType(typ)
	sv.UpdatedAt = time.Unix(updated, 0)
	return sv, true
}

// StateString returns the value of key, or def when absent.
func (d *Database) StateString(ctx context.Context, key, def string) string {
	sv, ok := d.State(ctx, key)
	if !ok {
		return def
	}
	return sv.Value
}

// StateInt returns the integer value of key, or def when absent or not an int.
func (d *Database) StateInt(ctx context.Context, key string, def int64) int64 {
	sv, ok := d.State(ctx, key)
	if !ok || sv.Type != StateTypeInt {
		return def
	}
	n, err := strconv.ParseInt(sv.Value, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// StateFloat returns the float value of key, or def. Integers widen.
func (d *Database) StateFloat(ctx context.Context, key string, def float64) float64 {
	sv, ok := d.State(ctx, key)
	if !ok || (sv.Type != StateTypeFloat && sv.Type != StateTypeInt) {
		return def
	}
	f, err := strconv.ParseFloat(sv.Value, 64)
	if err != nil {
		return def
	}
	return f
}

// StateBool returns the bool value of key, or def.
func (d *Database) StateBool(ctx context.Context, key string, def bool) bool {
	sv, ok := d.State(ctx, key)
	if !ok || sv.Type != StateTypeBool {
		return def
	}
	b, err := strconv.ParseBool(sv.Value)
	if err != nil {
		return def
	}
	return b
}

// StateJSON decodes a structured value of key into out and reports success.
func (d *Database) StateJSON(ctx context.Context, key string, out any) bool {
	sv, ok := d.State(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(sv.Value), out); err != nil {
		logging.Debug("session %s is not valid JSON: %v", key, err)
		return false
	}
	return true
}

// DeleteState removes key.
func (d *Database) DeleteState(ctx context.Context, key string) error {
	_, err := d.exec(ctx, "delete_state", "DELETE FROM session_state WHERE key = ?", key)
	return err
}

// LoadState reads every session entry in one query, for startup.
func (d *Database) LoadState(ctx context.Context) map[string]StateValue {
	result := make(map[string]StateValue)
	if !d.readable("load_state") {
		return result
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, "SELECT key, value, value_type, updated_at FROM session_state ORDER BY key")
	if err != nil {
		logging.Debug("load state: %v", classify("load_state", err))
		return result
	}
	defer rows.Close()

	for rows.Next() {
		var key, typ string
		var sv StateValue
		var updated int64
		if err := rows.Scan(&key, &sv.Value, &typ, &updated); err != nil {
			return result
		}
		sv.Type = StateType(typ)
		sv.UpdatedAt = time.Unix(updated, 0)
		result[key] = sv
	}
	return result
}

// StateKeys returns every stored key in order.
func (d *Database) StateKeys(ctx context.Context) []string {
	all := d.LoadState(ctx)
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
