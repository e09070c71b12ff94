package db

import (
	"encoding/json"
	"fmt"
	"time"

	"spool.sh/core/models"
)

type Event struct {
	Run       string `json:"run"`
	Workflow  string `json:"workflow"`
	Created   int64  `json:"created"`
	EventJson string `json:"event"`
}

// WorkflowStatus is the JSON payload of a status event.
type WorkflowStatus struct {
	Run       string  `json:"run"`
	Workflow  string  `json:"workflow"`
	Status    string  `json:"status"`
	Error     *string `json:"error,omitempty"`
	ExitCode  *int64  `json:"exit_code,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func (d *DB) InsertEvent(event Event) error {
	_, err := d.Exec(
		`insert into events (run, workflow, event, created) values (?, ?, ?, ?)`,
		event.Run,
		event.Workflow,
		event.EventJson,
		event.Created,
	)

	return err
}

func (d *DB) GetEvents(cursor int64) ([]Event, error) {
	whereClause := ""
	args := []any{}
	if cursor > 0 {
		whereClause = "where created > ?"
		args = append(args, cursor)
	}

	query := fmt.Sprintf(`
		select run, workflow, event, created
		from events
		%s
		order by created asc
		limit 100
	`, whereClause)

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evts []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Run, &ev.Workflow, &ev.EventJson, &ev.Created); err != nil {
			return nil, err
		}
		evts = append(evts, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return evts, nil
}

func (d *DB) createStatusEvent(
	workflowId models.WorkflowId,
	statusKind models.StatusKind,
	workflowError *string,
	exitCode *int64,
) error {
	now := time.Now()
	s := WorkflowStatus{
		Run:       workflowId.Run,
		Workflow:  workflowId.Name,
		Status:    string(statusKind),
		Error:     workflowError,
		ExitCode:  exitCode,
		CreatedAt: now.Format(time.RFC3339),
	}

	eventJson, err := json.Marshal(s)
	if err != nil {
		return err
	}

	event := Event{
		Run:       workflowId.Run,
		Workflow:  workflowId.Name,
		Created:   now.UnixNano(),
		EventJson: string(eventJson),
	}

	return d.InsertEvent(event)
}

func (d *DB) GetStatus(workflowId models.WorkflowId) (*WorkflowStatus, error) {
	var eventJson string
	err := d.QueryRow(
		`
		select
			event from events
		where
			run = ?
			and workflow = ?
		order by
			created desc
		limit
			1
		`,
		workflowId.Run,
		workflowId.Name,
	).Scan(&eventJson)

	if err != nil {
		return nil, err
	}

	var status WorkflowStatus
	if err := json.Unmarshal([]byte(eventJson), &status); err != nil {
		return nil, err
	}

	return &status, nil
}

func (d *DB) StatusPending(workflowId models.WorkflowId) error {
	return d.createStatusEvent(workflowId, models.StatusKindPending, nil, nil)
}

func (d *DB) StatusRunning(workflowId models.WorkflowId) error {
	return d.createStatusEvent(workflowId, models.StatusKindRunning, nil, nil)
}

func (d *DB) StatusFailed(workflowId models.WorkflowId, workflowError string, exitCode int64) error {
	return d.createStatusEvent(workflowId, models.StatusKindFailed, &workflowError, &exitCode)
}

func (d *DB) StatusSuccess(workflowId models.WorkflowId) error {
	return d.createStatusEvent(workflowId, models.StatusKindSuccess, nil, nil)
}

func (d *DB) StatusTimeout(workflowId models.WorkflowId) error {
	return d.createStatusEvent(workflowId, models.StatusKindTimeout, nil, nil)
}
