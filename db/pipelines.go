package db

import (
	"fmt"
	"time"

	"spool.sh/core/models"
	"spool.sh/core/workflow"
)

type Pipeline struct {
	Run     string            `json:"run"`
	Repo    string            `json:"repo"`
	Trigger string            `json:"trigger"`
	Status  models.StatusKind `json:"status"`

	// only if failed
	Error    string `json:"error"`
	ExitCode int    `json:"exit_code"`

	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (db *DB) CreatePipeline(id models.PipelineId, trigger workflow.Trigger) error {
	_, err := db.Exec(`
		insert into pipelines (run, repo, trigger_kind, status)
		values (?, ?, ?, ?)
	`, id.Run, id.Repo, string(trigger.Kind), models.StatusKindPending)

	return err
}

func (db *DB) MarkPipelineRunning(id models.PipelineId) error {
	_, err := db.Exec(`
		update pipelines
		set status = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		where run = ?
	`, models.StatusKindRunning, id.Run)

	return err
}

func (db *DB) MarkPipelineFailed(id models.PipelineId, exitCode int, errorMsg string) error {
	_, err := db.Exec(`
		update pipelines
		set status = ?,
		    exit_code = ?,
		    error = ?,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		    finished_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		where run = ?
	`, models.StatusKindFailed, exitCode, errorMsg, id.Run)

	return err
}

func (db *DB) MarkPipelineTimeout(id models.PipelineId) error {
	_, err := db.Exec(`
		update pipelines
		set status = ?,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		    finished_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		where run = ?
	`, models.StatusKindTimeout, id.Run)

	return err
}

func (db *DB) MarkPipelineSuccess(id models.PipelineId) error {
	_, err := db.Exec(`
		update pipelines
		set status = ?,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
		    finished_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
		where run = ?
	`, models.StatusKindSuccess, id.Run)

	return err
}

func (db *DB) GetPipeline(run string) (Pipeline, error) {
	var p Pipeline
	var startedAt, updatedAt string
	var finishedAt *string
	err := db.QueryRow(`
		select run, repo, trigger_kind, status, error, exit_code, started_at, updated_at, finished_at
		from pipelines
		where run = ?
	`, run).Scan(&p.Run, &p.Repo, &p.Trigger, &p.Status, &p.Error, &p.ExitCode, &startedAt, &updatedAt, &finishedAt)
	if err != nil {
		return p, err
	}

	p.StartedAt = parseTime(startedAt)
	p.UpdatedAt = parseTime(updatedAt)
	if finishedAt != nil {
		p.FinishedAt = parseTime(*finishedAt)
	}

	return p, nil
}

func (db *DB) GetPipelines(cursor string) ([]Pipeline, error) {
	whereClause := ""
	args := []any{}
	if cursor != "" {
		whereClause = "where started_at < ?"
		args = append(args, cursor)
	}

	query := fmt.Sprintf(`
		select run, repo, trigger_kind, status, error, exit_code, started_at, updated_at, finished_at
		from pipelines
		%s
		order by started_at desc
		limit 100
	`, whereClause)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pipelines []Pipeline
	for rows.Next() {
		var p Pipeline
		var startedAt, updatedAt string
		var finishedAt *string
		if err := rows.Scan(&p.Run, &p.Repo, &p.Trigger, &p.Status, &p.Error, &p.ExitCode, &startedAt, &updatedAt, &finishedAt); err != nil {
			return nil, err
		}
		p.StartedAt = parseTime(startedAt)
		p.UpdatedAt = parseTime(updatedAt)
		if finishedAt != nil {
			p.FinishedAt = parseTime(*finishedAt)
		}
		pipelines = append(pipelines, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pipelines, nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
