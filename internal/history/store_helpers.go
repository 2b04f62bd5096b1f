package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const entryColumns = "id, job_id, input_path, status, frames, tiles, segments, frame_rate, duration, layout, policy, audio, fallback, output_paths_json, output_bytes, error_message, started_at, finished_at"

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		entry       Entry
		statusStr   string
		layout      sql.NullString
		policy      sql.NullString
		audio       int
		fallback    int
		outputs     sql.NullString
		errorMsg    sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.JobID,
		&entry.InputPath,
		&statusStr,
		&entry.Frames,
		&entry.Tiles,
		&entry.Segments,
		&entry.FrameRate,
		&entry.Duration,
		&layout,
		&policy,
		&audio,
		&fallback,
		&outputs,
		&entry.OutputBytes,
		&errorMsg,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	entry.Status = Status(statusStr)
	entry.Layout = layout.String
	entry.Policy = policy.String
	entry.Audio = audio != 0
	entry.Fallback = fallback != 0
	entry.ErrorMessage = errorMsg.String
	if outputs.Valid && outputs.String != "" {
		if err := json.Unmarshal([]byte(outputs.String), &entry.OutputPaths); err != nil {
			return nil, fmt.Errorf("decode output paths: %w", err)
		}
	}
	entry.StartedAt = parseTime(startedRaw)
	entry.FinishedAt = parseTime(finishedRaw)
	return &entry, nil
}

func encodePaths(paths []string) (any, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("encode output paths: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
