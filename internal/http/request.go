package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/childcare-backoffice/internal/wallclock"
)

// ownerOffsetHeader carries the owner's UTC offset in minutes east of UTC.
const ownerOffsetHeader = "X-Owner-Offset"

// ownerOffset reads the offset header. An absent header yields the zero
// Offset, which services reject on writes.
func ownerOffset(r *http.Request) (wallclock.Offset, bool) {
	raw := strings.TrimSpace(r.Header.Get(ownerOffsetHeader))
	if raw == "" {
		return wallclock.Offset{}, true
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil {
		return wallclock.Offset{}, false
	}
	offset, err := wallclock.OffsetMinutes(minutes)
	if err != nil {
		return wallclock.Offset{}, false
	}
	return offset, true
}

// readOffset writes the error response itself when the header is malformed.
func (r responder) readOffset(ctx context.Context, w http.ResponseWriter, req *http.Request) (wallclock.Offset, bool) {
	offset, ok := ownerOffset(req)
	if !ok {
		r.writeJSON(ctx, w, http.StatusUnprocessableEntity, errorResponse{
			ErrorCode: "TIMEZONE_OFFSET_INVALID",
			Message:   ownerOffsetHeader + " must be whole minutes east of UTC between -840 and 840",
		})
	}
	return offset, ok
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func resourceID(r *http.Request) string {
	id, _ := ResourceIDFromContext(r.Context())
	return strings.TrimSpace(id)
}

// splitPath turns "/prefix/{id}/{action}" into its id and optional action.
func splitPath(path, prefix string) (id, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], "", true
	case 2:
		return parts[0], parts[1], parts[1] != ""
	default:
		return "", "", false
	}
}

// parseInstant accepts RFC 3339 or a bare YYYY-MM-DD, the latter read as
// local midnight in the caller's offset.
func parseInstant(value string, offset wallclock.Offset) (*time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return &ts, true
	}
	date, err := wallclock.ParseDate(value)
	if err != nil {
		return nil, false
	}
	if !offset.Valid() {
		ts := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC)
		return &ts, true
	}
	ts, err := wallclock.StartOfDay(date, offset)
	if err != nil {
		return nil, false
	}
	return &ts, true
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func queryBool(values url.Values, key string) (*bool, bool) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, false
	}
	return &b, true
}

func formatOptionalTime(t *time.Time, offset wallclock.Offset) *string {
	if t == nil {
		return nil
	}
	s := wallclock.Format(*t, offset)
	return &s
}
