// Package store persists owners, automations and trigger state in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/powersync/powersync/internal/automation"
)

//go:embed schema.sql
var schema string

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. SQLite only supports one writer, so the pool is capped at a
// single connection.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Owners returns all owners.
func (s *Store) Owners(ctx context.Context) ([]*automation.Owner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, timezone, device_config,
		       export_rule, export_rule_updated_at,
		       inverter_curtailed, inverter_power_limit_w, inverter_state_updated_at,
		       manual_charge_active, manual_charge_expires_at,
		       manual_discharge_active, manual_discharge_expires_at
		FROM owners ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var owners []*automation.Owner
	for rows.Next() {
		owner, err := scanOwner(rows)
		if err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func scanOwner(rows *sql.Rows) (*automation.Owner, error) {
	var owner automation.Owner
	var deviceConfig string
	var exportUpdated, inverterUpdated, chargeExpires, dischargeExpires string
	if err := rows.Scan(&owner.ID, &owner.Name, &owner.Timezone, &deviceConfig,
		&owner.CurrentExportRule, &exportUpdated,
		&owner.InverterCurtailed, &owner.InverterPowerLimitW, &inverterUpdated,
		&owner.ManualChargeActive, &chargeExpires,
		&owner.ManualDischargeActive, &dischargeExpires); err != nil {
		return nil, fmt.Errorf("scan owner: %w", err)
	}
	if err := json.Unmarshal([]byte(deviceConfig), &owner.DeviceConfig); err != nil {
		return nil, fmt.Errorf("owner %d: decode device config: %w", owner.ID, err)
	}
	owner.ExportRuleUpdatedAt = parseTime(exportUpdated)
	owner.InverterStateUpdatedAt = parseTime(inverterUpdated)
	owner.ManualChargeExpiresAt = parseTime(chargeExpires)
	owner.ManualDischargeExpiresAt = parseTime(dischargeExpires)
	return &owner, nil
}

// CreateOwner inserts an owner and sets its ID.
func (s *Store) CreateOwner(ctx context.Context, owner *automation.Owner) error {
	deviceConfig, err := json.Marshal(owner.DeviceConfig)
	if err != nil {
		return fmt.Errorf("encode device config: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (name, timezone, device_config) VALUES (?, ?, ?)`,
		owner.Name, owner.Timezone, string(deviceConfig))
	if err != nil {
		return err
	}
	owner.ID, err = result.LastInsertId()
	return err
}

// SaveOwnerState updates the owner's cached device state.
func (s *Store) SaveOwnerState(ctx context.Context, owner *automation.Owner) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE owners SET
			export_rule = ?, export_rule_updated_at = ?,
			inverter_curtailed = ?, inverter_power_limit_w = ?, inverter_state_updated_at = ?,
			manual_charge_active = ?, manual_charge_expires_at = ?,
			manual_discharge_active = ?, manual_discharge_expires_at = ?
		WHERE id = ?`,
		owner.CurrentExportRule, formatTime(owner.ExportRuleUpdatedAt),
		owner.InverterCurtailed, owner.InverterPowerLimitW, formatTime(owner.InverterStateUpdatedAt),
		owner.ManualChargeActive, formatTime(owner.ManualChargeExpiresAt),
		owner.ManualDischargeActive, formatTime(owner.ManualDischargeExpiresAt),
		owner.ID)
	return err
}

// CreateAutomation inserts an automation with its trigger and actions in one
// transaction. The automation's Owner must already exist.
func (s *Store) CreateAutomation(ctx context.Context, a *automation.Automation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO automations (owner_id, name, priority, enabled, paused, run_once, notification_only, last_triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Owner.ID, a.Name, a.Priority, a.Enabled, a.Paused, a.RunOnce, a.NotificationOnly, formatTime(a.LastTriggeredAt))
	if err != nil {
		return err
	}
	if a.ID, err = result.LastInsertId(); err != nil {
		return err
	}

	config, err := automation.EncodeConfig(a.Trigger.Config)
	if err != nil {
		return err
	}
	var windowStart, windowEnd string
	if a.Trigger.Window.Start != nil {
		windowStart = a.Trigger.Window.Start.String()
	}
	if a.Trigger.Window.End != nil {
		windowEnd = a.Trigger.Window.End.String()
	}
	result, err = tx.ExecContext(ctx, `
		INSERT INTO triggers (automation_id, kind, window_start, window_end, config, state_kind, state_value, state_day, state_fired_at, state_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Trigger.Kind()), windowStart, windowEnd, string(config),
		string(a.Trigger.State.Kind), a.Trigger.State.Value, a.Trigger.State.Day,
		formatTime(a.Trigger.State.FiredAt), formatTime(a.Trigger.State.EvaluatedAt))
	if err != nil {
		return err
	}
	if a.Trigger.ID, err = result.LastInsertId(); err != nil {
		return err
	}

	for i := range a.Actions {
		params, err := a.Actions[i].Params.Encode()
		if err != nil {
			return err
		}
		result, err = tx.ExecContext(ctx, `
			INSERT INTO actions (automation_id, kind, params, execution_order)
			VALUES (?, ?, ?, ?)`,
			a.ID, string(a.Actions[i].Kind), string(params), a.Actions[i].ExecutionOrder)
		if err != nil {
			return err
		}
		if a.Actions[i].ID, err = result.LastInsertId(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// EnabledAutomations returns all enabled, unpaused automations ordered by
// priority (descending), with the automation id as a stable tie-break.
// Automations of the same owner share one Owner record.
func (s *Store) EnabledAutomations(ctx context.Context) ([]*automation.Automation, error) {
	owners, err := s.Owners(ctx)
	if err != nil {
		return nil, err
	}
	ownersByID := make(map[int64]*automation.Owner, len(owners))
	for _, owner := range owners {
		ownersByID[owner.ID] = owner
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.owner_id, a.name, a.priority, a.run_once, a.notification_only, a.last_triggered_at,
		       t.id, t.kind, t.window_start, t.window_end, t.config,
		       t.state_kind, t.state_value, t.state_day, t.state_fired_at, t.state_updated_at
		FROM automations a
		JOIN triggers t ON t.automation_id = a.id
		WHERE a.enabled = 1 AND a.paused = 0
		ORDER BY a.priority DESC, a.id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var automations []*automation.Automation
	for rows.Next() {
		a, err := scanAutomation(rows, ownersByID)
		if err != nil {
			return nil, err
		}
		automations = append(automations, a)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, a := range automations {
		if a.Actions, err = s.automationActions(ctx, a.ID); err != nil {
			return nil, err
		}
	}
	return automations, nil
}

func scanAutomation(rows *sql.Rows, owners map[int64]*automation.Owner) (*automation.Automation, error) {
	var a automation.Automation
	var ownerID int64
	var lastTriggered string
	var t automation.Trigger
	var kind, windowStart, windowEnd, config string
	var stateKind, stateDay, stateFired, stateUpdated string
	if err := rows.Scan(&a.ID, &ownerID, &a.Name, &a.Priority, &a.RunOnce, &a.NotificationOnly, &lastTriggered,
		&t.ID, &kind, &windowStart, &windowEnd, &config,
		&stateKind, &t.State.Value, &stateDay, &stateFired, &stateUpdated); err != nil {
		return nil, fmt.Errorf("scan automation: %w", err)
	}
	owner, ok := owners[ownerID]
	if !ok {
		return nil, fmt.Errorf("automation %d: unknown owner %d", a.ID, ownerID)
	}
	a.Owner = owner
	a.Enabled = true
	a.LastTriggeredAt = parseTime(lastTriggered)

	var err error
	if t.Config, err = automation.DecodeConfig(automation.Kind(kind), []byte(config)); err != nil {
		return nil, fmt.Errorf("automation %d: %w", a.ID, err)
	}
	if t.Window, err = parseWindow(windowStart, windowEnd); err != nil {
		return nil, fmt.Errorf("automation %d: %w", a.ID, err)
	}
	t.State.Kind = automation.EdgeKind(stateKind)
	t.State.Day = stateDay
	t.State.FiredAt = parseTime(stateFired)
	t.State.EvaluatedAt = parseTime(stateUpdated)
	a.Trigger = &t
	return &a, nil
}

func (s *Store) automationActions(ctx context.Context, automationID int64) ([]automation.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, params, execution_order FROM actions
		WHERE automation_id = ? ORDER BY execution_order ASC, id ASC`, automationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var actions []automation.Action
	for rows.Next() {
		var a automation.Action
		var params string
		if err = rows.Scan(&a.ID, &a.Kind, &params, &a.ExecutionOrder); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if a.Params, err = automation.DecodeParams([]byte(params)); err != nil {
			return nil, fmt.Errorf("action %d: %w", a.ID, err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// SaveTriggerState persists a trigger's edge-detection state. This is a
// single-statement write so a crash can never leave partial state behind.
func (s *Store) SaveTriggerState(ctx context.Context, t *automation.Trigger) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE triggers SET state_kind = ?, state_value = ?, state_day = ?, state_fired_at = ?, state_updated_at = ?
		WHERE id = ?`,
		string(t.State.Kind), t.State.Value, t.State.Day,
		formatTime(t.State.FiredAt), formatTime(t.State.EvaluatedAt), t.ID)
	return err
}

// MarkTriggered records a firing and pauses run-once automations. The
// in-memory record is only updated once the write succeeded, so a failed
// write never leaves memory and database disagreeing.
func (s *Store) MarkTriggered(ctx context.Context, a *automation.Automation, at time.Time) error {
	paused := a.Paused || a.RunOnce
	_, err := s.db.ExecContext(ctx, `
		UPDATE automations SET last_triggered_at = ?, paused = ? WHERE id = ?`,
		formatTime(at), paused, a.ID)
	if err != nil {
		return err
	}
	a.LastTriggeredAt = at
	a.Paused = paused
	return nil
}

func parseWindow(start, end string) (automation.TimeWindow, error) {
	var w automation.TimeWindow
	if start != "" {
		t, err := automation.ParseTimeOfDay(start)
		if err != nil {
			return w, err
		}
		w.Start = &t
	}
	if end != "" {
		t, err := automation.ParseTimeOfDay(end)
		if err != nil {
			return w, err
		}
		w.End = &t
	}
	return w, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
