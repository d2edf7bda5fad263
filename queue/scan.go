package queue

import (
	"database/sql"
	"encoding/json"

	"github.com/brandlens/brandlens/errors"
)

// JobScanArgs holds the raw JSON list columns and nullable columns
// scanned from a monitoring_jobs row
type JobScanArgs struct {
	QueryIDs     string
	Providers    string
	ExecutionIDs string
	ErrorMsg     sql.NullString
	StartedAt    sql.NullTime
	CompletedAt  sql.NullTime
}

// GetJobScanArgs returns a JobScanArgs ready for scanning
func GetJobScanArgs() *JobScanArgs {
	return &JobScanArgs{}
}

// GetJobScanTargets returns scan destinations for the job and its scan
// args, in the order of StandardJobSelectColumns
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.TenantID,
		&job.ProjectID,
		&args.QueryIDs,
		&args.Providers,
		&job.Status,
		&job.Progress.Current,
		&job.Progress.Total,
		&job.Attempts,
		&job.MaxAttempts,
		&args.ExecutionIDs,
		&args.ErrorMsg,
		&args.StartedAt,
		&args.CompletedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	}
}

// ProcessJobScanArgs moves the scanned columns into the job struct
func ProcessJobScanArgs(job *Job, args *JobScanArgs) error {
	var err error
	if job.QueryIDs, err = decodeIDList(args.QueryIDs); err != nil {
		return errors.Wrapf(err, "decode query_ids for job %s", job.ID)
	}
	if job.Providers, err = decodeIDList(args.Providers); err != nil {
		return errors.Wrapf(err, "decode providers for job %s", job.ID)
	}
	if job.ExecutionIDs, err = decodeIDList(args.ExecutionIDs); err != nil {
		return errors.Wrapf(err, "decode execution_ids for job %s", job.ID)
	}
	if args.ErrorMsg.Valid {
		job.Error = args.ErrorMsg.String
	}
	if args.StartedAt.Valid {
		job.StartedAt = &args.StartedAt.Time
	}
	if args.CompletedAt.Valid {
		job.CompletedAt = &args.CompletedAt.Time
	}
	return nil
}

// ScanJobFromRow scans a single job from a sql.Row
func ScanJobFromRow(row *sql.Row, job *Job) error {
	args := GetJobScanArgs()
	if err := row.Scan(GetJobScanTargets(job, args)...); err != nil {
		return err
	}
	return ProcessJobScanArgs(job, args)
}

// ScanJobFromRows scans a single job from sql.Rows (for use in loops)
func ScanJobFromRows(rows *sql.Rows, job *Job) error {
	args := GetJobScanArgs()
	if err := rows.Scan(GetJobScanTargets(job, args)...); err != nil {
		return err
	}
	return ProcessJobScanArgs(job, args)
}

// StandardJobSelectColumns returns the standard column list for job
// SELECT queries
func StandardJobSelectColumns() string {
	return `id, tenant_id, project_id, query_ids, providers, status,
		progress_current, progress_total, attempts, max_attempts,
		execution_ids, error,
		started_at, completed_at, created_at, updated_at`
}

// encodeIDList serializes a string list for a TEXT column. Empty and nil
// both store as an empty JSON array.
func encodeIDList(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return "", errors.Wrap(err, "encode id list")
	}
	return string(raw), nil
}

// decodeIDList parses a TEXT column back into a string list, nil for empty
func decodeIDList(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}
