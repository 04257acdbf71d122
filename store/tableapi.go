package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Row is a generic record as returned by the row-level data API.
type Row = map[string]any

// Filters maps column (optionally suffixed with an operator) to a value.
// Supported suffixes: __gt, __gte, __lt, __lte, __like, __is_null, __in.
// An array value means IN. A nil value is skipped.
type Filters = map[string]any

var (
	ErrNotFound        = errors.New("record not found")
	ErrConflict        = errors.New("duplicate value violates a unique constraint")
	ErrTableNotAllowed = errors.New("table is not allowed")
)

// ListOptions controls ordering and paging. Limit is clamped to [1,1000];
// a zero OrderBy defaults to created_at.
type ListOptions struct {
	Limit     int
	Offset    int
	OrderBy   string
	Ascending bool
}

// TableAPI is the row-level data access boundary every scan job goes
// through. Table and column names are validated against a fixed allow-list
// before being interpolated into any query.
type TableAPI interface {
	List(ctx context.Context, table string, filters Filters, opts ListOptions) ([]Row, error)
	Get(ctx context.Context, table, rowID, idField string) (Row, error)
	Create(ctx context.Context, table string, fields Row) (Row, error)
	Update(ctx context.Context, table, rowID string, patch Row, idField string) (Row, error)
	Delete(ctx context.Context, table, rowID, idField string) (Row, error)
	Count(ctx context.Context, table string, filters Filters) (int64, error)
}

var allowedTables = map[string]bool{
	"organizations":           true,
	"organization_members":    true,
	"app_users":               true,
	"properties":              true,
	"leases":                  true,
	"collection_records":      true,
	"payment_instructions":    true,
	"tasks":                   true,
	"anomaly_alerts":          true,
	"application_submissions": true,
	"message_logs":            true,
	"notification_events":     true,
	"user_notifications":      true,
	"push_tokens":             true,
	"owner_statements":        true,
	"reservations":            true,
	"expenses":                true,
	"escrow_events":           true,
}

// ValidateTable checks the table against the allow-list.
func ValidateTable(table string) (string, error) {
	normalized, err := ValidateIdentifier(table)
	if err != nil {
		return "", err
	}
	if !allowedTables[normalized] {
		return "", fmt.Errorf("%w: %q", ErrTableNotAllowed, normalized)
	}
	return normalized, nil
}

// ValidateIdentifier accepts lowercase snake_case identifiers only. Anything
// else is rejected before query construction, regardless of source.
func ValidateIdentifier(identifier string) (string, error) {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return "", errors.New("identifier cannot be empty")
	}
	for i, r := range trimmed {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9' && i > 0)
		if !ok {
			return "", fmt.Errorf("invalid identifier %q", trimmed)
		}
	}
	return trimmed, nil
}

type filterOp int

const (
	opEq filterOp = iota
	opGt
	opGte
	opLt
	opLte
	opLike
	opIsNull
)

// parseFilterKey splits "column__op" into a validated column and operator.
// A bare column means equality; the __in suffix is an alias for the array
// form of equality.
func parseFilterKey(filterKey string) (string, filterOp, error) {
	column := filterKey
	op := opEq

	if idx := strings.LastIndex(filterKey, "__"); idx > 0 {
		suffix := filterKey[idx+2:]
		switch suffix {
		case "gt":
			op = opGt
		case "gte":
			op = opGte
		case "lt":
			op = opLt
		case "lte":
			op = opLte
		case "like":
			op = opLike
		case "is_null":
			op = opIsNull
		case "in":
			op = opEq
		default:
			suffix = ""
		}
		if suffix != "" {
			column = filterKey[:idx]
		}
	}

	validated, err := ValidateIdentifier(column)
	if err != nil {
		return "", opEq, err
	}
	return validated, op, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func orderColumn(opts ListOptions) (string, error) {
	if strings.TrimSpace(opts.OrderBy) == "" {
		return "created_at", nil
	}
	return ValidateIdentifier(opts.OrderBy)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "1", "yes", "y":
			return true
		}
		return false
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return false
	}
}
