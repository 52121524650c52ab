package application

import (
	"errors"
	"sort"
	"strings"

	"github.com/example/childcare-backoffice/internal/persistence"
	"github.com/example/childcare-backoffice/internal/wallclock"
)

// mapRepoError translates persistence sentinels into application errors.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrStaleWrite):
		return ErrConcurrentUpdate
	case errors.Is(err, persistence.ErrSessionLocked):
		return ErrSessionLocked
	case errors.Is(err, persistence.ErrReferenced):
		return ErrRuleInUse
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		vErr := &ValidationError{}
		vErr.add("references", "related records are missing")
		return vErr
	case errors.Is(err, persistence.ErrConstraintViolation):
		vErr := &ValidationError{}
		vErr.add("input", "violates a storage constraint")
		return vErr
	}
	return err
}

func parseDateField(vErr *ValidationError, field, value string) (wallclock.Date, bool) {
	if strings.TrimSpace(value) == "" {
		return wallclock.Date{}, false
	}
	d, err := wallclock.ParseDate(value)
	if err != nil {
		vErr.add(field, "must be a date formatted YYYY-MM-DD")
		return wallclock.Date{}, false
	}
	return d, true
}

func parseClockField(vErr *ValidationError, field, value string) (wallclock.Clock, bool) {
	if strings.TrimSpace(value) == "" {
		return wallclock.Clock{}, false
	}
	c, err := wallclock.ParseClock(value)
	if err != nil {
		vErr.add(field, "must be a time formatted HH:MM")
		return wallclock.Clock{}, false
	}
	return c, true
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

func sortStrings(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
