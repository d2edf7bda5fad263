package monitor

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// ExecutionScanArgs holds the nullable columns scanned from a
// query_executions row
type ExecutionScanArgs struct {
	QueryID     sql.NullString
	ErrorMsg    sql.NullString
	CompletedAt sql.NullTime
}

// GetExecutionScanArgs returns an ExecutionScanArgs ready for scanning
func GetExecutionScanArgs() *ExecutionScanArgs {
	return &ExecutionScanArgs{}
}

// GetExecutionScanTargets returns scan destinations for the execution and
// its nullable args, in the order of StandardExecutionSelectColumns
func GetExecutionScanTargets(exec *Execution, args *ExecutionScanArgs) []interface{} {
	return []interface{}{
		&exec.ID,
		&exec.ProjectID,
		&args.QueryID,
		&exec.QueryText,
		&exec.Provider,
		&exec.Model,
		&exec.Status,
		&exec.ResponseText,
		&exec.MentionCount,
		&exec.CacheHit,
		&exec.PromptTokens,
		&exec.CompletionTokens,
		&exec.DurationMs,
		&args.ErrorMsg,
		&exec.StartedAt,
		&args.CompletedAt,
	}
}

// ProcessExecutionScanArgs moves the scanned nullable columns into the
// execution struct
func ProcessExecutionScanArgs(exec *Execution, args *ExecutionScanArgs) {
	if args.QueryID.Valid {
		exec.QueryID = args.QueryID.String
	}
	if args.ErrorMsg.Valid {
		exec.Error = args.ErrorMsg.String
	}
	if args.CompletedAt.Valid {
		exec.CompletedAt = &args.CompletedAt.Time
	}
}

// ScanExecutionFromRow scans a single execution from a sql.Row
func ScanExecutionFromRow(row *sql.Row, exec *Execution) error {
	args := GetExecutionScanArgs()
	if err := row.Scan(GetExecutionScanTargets(exec, args)...); err != nil {
		return err
	}
	ProcessExecutionScanArgs(exec, args)
	return nil
}

// ScanExecutionFromRows scans a single execution from sql.Rows (for use in loops)
func ScanExecutionFromRows(rows *sql.Rows, exec *Execution) error {
	args := GetExecutionScanArgs()
	if err := rows.Scan(GetExecutionScanTargets(exec, args)...); err != nil {
		return err
	}
	ProcessExecutionScanArgs(exec, args)
	return nil
}

// StandardExecutionSelectColumns returns the standard column list for
// execution SELECT queries
func StandardExecutionSelectColumns() string {
	return `id, project_id, query_id, query_text, provider, model, status,
		response_text, mention_count, cache_hit,
		prompt_tokens, completion_tokens, duration_ms,
		error, started_at, completed_at`
}

// marshalNames encodes a name list as a JSON array column value
func marshalNames(names []string) string {
	if len(names) == 0 {
		return "[]"
	}
	raw, _ := json.Marshal(names)
	return string(raw)
}

// unmarshalNames decodes a JSON array column value
func unmarshalNames(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("failed to unmarshal name list: %w", err)
	}
	return names, nil
}
