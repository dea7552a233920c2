package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"postflow/internal/lifecycle"
	"postflow/internal/platform"
	"postflow/internal/services"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t := parseTime(value.String)
	if t.IsZero() {
		return nil
	}
	return &t
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

func encodeJSON(value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// encodeOptional stores nil values and empty maps as SQL NULL.
func encodeOptional[T any](value *T) (any, error) {
	if value == nil {
		return nil, nil
	}
	return encodeJSON(value)
}

func encodeMap[K comparable, V any](value map[K]V) (any, error) {
	if len(value) == 0 {
		return nil, nil
	}
	return encodeJSON(value)
}

func decodeJSON(raw sql.NullString, target any) error {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw.String), target)
}

func errorKindValue(record *ErrorRecord) (any, any) {
	if record == nil {
		return nil, nil
	}
	return string(record.Kind), record.Message
}

func errorRecord(kind, message sql.NullString) *ErrorRecord {
	if !kind.Valid || kind.String == "" {
		return nil
	}
	return &ErrorRecord{Kind: services.ErrorKind(kind.String), Message: message.String}
}

const itemColumns = "id, owner_id, text, media_json, hashtags_json, target_platforms_json, state, moderation_json, analysis_json, renders_json, render_round, schedule_time, publish_results_json, version, origin, callback_url, analyze_with_ai, prompt, cancel_requested, cancelled_at, last_error_kind, last_error_message, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(scanner rowScanner) (*Item, error) {
	var (
		item           Item
		state          string
		origin         string
		mediaJSON      sql.NullString
		hashtagsJSON   sql.NullString
		targetsJSON    sql.NullString
		moderationJSON sql.NullString
		analysisJSON   sql.NullString
		rendersJSON    sql.NullString
		scheduleRaw    sql.NullString
		publishJSON    sql.NullString
		callbackURL    sql.NullString
		analyzeWithAI  int
		prompt         sql.NullString
		cancelFlag     int
		cancelledRaw   sql.NullString
		errorKind      sql.NullString
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.OwnerID,
		&item.Text,
		&mediaJSON,
		&hashtagsJSON,
		&targetsJSON,
		&state,
		&moderationJSON,
		&analysisJSON,
		&rendersJSON,
		&item.RenderRound,
		&scheduleRaw,
		&publishJSON,
		&item.Version,
		&origin,
		&callbackURL,
		&analyzeWithAI,
		&prompt,
		&cancelFlag,
		&cancelledRaw,
		&errorKind,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item.State = lifecycle.State(state)
	item.Origin = Origin(origin)
	item.CallbackURL = callbackURL.String
	item.AnalyzeWithAI = analyzeWithAI != 0
	item.Prompt = prompt.String
	item.CancelRequested = cancelFlag != 0
	item.CancelledAt = parseNullTime(cancelledRaw)
	item.ScheduleTime = parseNullTime(scheduleRaw)
	item.LastError = errorRecord(errorKind, errorMessage)
	item.CreatedAt = parseTime(createdRaw)
	item.UpdatedAt = parseTime(updatedRaw)

	decoders := []struct {
		name   string
		raw    sql.NullString
		target any
	}{
		{"media", mediaJSON, &item.Media},
		{"hashtags", hashtagsJSON, &item.Hashtags},
		{"target_platforms", targetsJSON, &item.TargetPlatforms},
		{"moderation", moderationJSON, &item.Moderation},
		{"analysis", analysisJSON, &item.Analysis},
		{"renders", rendersJSON, &item.Renders},
		{"publish_results", publishJSON, &item.PublishResults},
	}
	for _, d := range decoders {
		if err := decodeJSON(d.raw, d.target); err != nil {
			return nil, fmt.Errorf("decode %s for content %s: %w", d.name, item.ID, err)
		}
	}
	if item.Renders == nil {
		item.Renders = map[platform.Name]*PlatformRender{}
	}
	if item.PublishResults == nil {
		item.PublishResults = map[platform.Name]*PublishResult{}
	}
	return &item, nil
}

// itemValues returns the column values for every column after id, in itemColumns order.
func itemValues(item *Item) ([]any, error) {
	media, err := encodeJSON(nonNilSlice(item.Media))
	if err != nil {
		return nil, fmt.Errorf("encode media: %w", err)
	}
	hashtags, err := encodeJSON(nonNilSlice(item.Hashtags))
	if err != nil {
		return nil, fmt.Errorf("encode hashtags: %w", err)
	}
	targets, err := encodeJSON(nonNilSlice(item.TargetPlatforms))
	if err != nil {
		return nil, fmt.Errorf("encode target platforms: %w", err)
	}
	moderation, err := encodeOptional(item.Moderation)
	if err != nil {
		return nil, fmt.Errorf("encode moderation: %w", err)
	}
	analysis, err := encodeOptional(item.Analysis)
	if err != nil {
		return nil, fmt.Errorf("encode analysis: %w", err)
	}
	renders, err := encodeMap(item.Renders)
	if err != nil {
		return nil, fmt.Errorf("encode renders: %w", err)
	}
	publish, err := encodeMap(item.PublishResults)
	if err != nil {
		return nil, fmt.Errorf("encode publish results: %w", err)
	}
	errKind, errMessage := errorKindValue(item.LastError)
	return []any{
		item.OwnerID,
		item.Text,
		media,
		hashtags,
		targets,
		string(item.State),
		moderation,
		analysis,
		renders,
		item.RenderRound,
		nullableTime(item.ScheduleTime),
		publish,
		item.Version,
		string(item.Origin),
		nullableString(item.CallbackURL),
		boolToInt(item.AnalyzeWithAI),
		nullableString(item.Prompt),
		boolToInt(item.CancelRequested),
		nullableTime(item.CancelledAt),
		errKind,
		errMessage,
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	}, nil
}

func nonNilSlice[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}

const jobColumns = "id, content_id, stage, platform, round, status, attempt_count, last_error_kind, last_error_message, not_before, heartbeat_at, started_at, finished_at, created_at, updated_at"

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job          Job
		stage        string
		platformName string
		status       string
		errorKind    sql.NullString
		errorMessage sql.NullString
		notBefore    string
		heartbeat    sql.NullString
		started      sql.NullString
		finished     sql.NullString
		created      string
		updated      string
	)
	if err := scanner.Scan(
		&job.ID,
		&job.ContentID,
		&stage,
		&platformName,
		&job.Round,
		&status,
		&job.AttemptCount,
		&errorKind,
		&errorMessage,
		&notBefore,
		&heartbeat,
		&started,
		&finished,
		&created,
		&updated,
	); err != nil {
		return nil, err
	}
	job.Stage = lifecycle.Stage(stage)
	job.Platform = platform.Name(platformName)
	job.Status = JobStatus(status)
	job.LastError = errorRecord(errorKind, errorMessage)
	job.NotBefore = parseTime(notBefore)
	job.HeartbeatAt = parseNullTime(heartbeat)
	job.StartedAt = parseNullTime(started)
	job.FinishedAt = parseNullTime(finished)
	job.CreatedAt = parseTime(created)
	job.UpdatedAt = parseTime(updated)
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
