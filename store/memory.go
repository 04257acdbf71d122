package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a TableAPI backed by in-process maps. It emulates the unique
// constraints the jobs rely on so tests exercise the same conflict paths as
// the MySQL store.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
	Clock  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: map[string][]Row{},
		Clock:  func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts rows without validation or constraint checks. Test fixtures
// only.
func (s *MemoryStore) Seed(table string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		copied := cloneRow(row)
		if _, ok := copied["id"]; !ok {
			copied["id"] = uuid.NewString()
		}
		if _, ok := copied["created_at"]; !ok {
			copied["created_at"] = s.Clock()
		}
		s.tables[table] = append(s.tables[table], copied)
	}
}

func (s *MemoryStore) List(ctx context.Context, table string, filters Filters, opts ListOptions) ([]Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	order, err := orderColumn(opts)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Row
	for _, row := range s.tables[tableName] {
		ok, err := rowMatches(row, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, cloneRow(row))
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		less := compareValues(matched[i][order], matched[j][order]) < 0
		if opts.Ascending {
			return less
		}
		return !less
	})

	offset := max(opts.Offset, 0)
	if offset >= len(matched) {
		return []Row{}, nil
	}
	matched = matched[offset:]
	limit := clampLimit(opts.Limit)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) Get(ctx context.Context, table, rowID, idField string) (Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	idName, err := ValidateIdentifier(idField)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range s.tables[tableName] {
		if fmt.Sprint(row[idName]) == rowID {
			return cloneRow(row), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", tableName, ErrNotFound)
}

func (s *MemoryStore) Create(ctx context.Context, table string, fields Row) (Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("could not create %s record: no fields", tableName)
	}

	record := make(Row, len(fields)+2)
	for key, value := range fields {
		col, err := ValidateIdentifier(key)
		if err != nil {
			return nil, err
		}
		record[col] = value
	}
	if _, ok := record["id"]; !ok {
		record["id"] = uuid.NewString()
	}
	now := s.Clock()
	if _, ok := record["created_at"]; !ok {
		record["created_at"] = now
	}
	if _, ok := record["updated_at"]; !ok {
		record["updated_at"] = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(tableName, record, ""); err != nil {
		return nil, err
	}
	s.tables[tableName] = append(s.tables[tableName], record)
	return cloneRow(record), nil
}

func (s *MemoryStore) Update(ctx context.Context, table, rowID string, patch Row, idField string) (Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	idName, err := ValidateIdentifier(idField)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.tables[tableName] {
		if fmt.Sprint(row[idName]) != rowID {
			continue
		}
		candidate := cloneRow(row)
		for key, value := range patch {
			col, err := ValidateIdentifier(key)
			if err != nil {
				return nil, err
			}
			candidate[col] = value
		}
		if err := s.checkUnique(tableName, candidate, fmt.Sprint(row["id"])); err != nil {
			return nil, err
		}
		for key, value := range candidate {
			row[key] = value
		}
		row["updated_at"] = s.Clock()
		return cloneRow(row), nil
	}
	return nil, fmt.Errorf("%s: %w", tableName, ErrNotFound)
}

func (s *MemoryStore) Delete(ctx context.Context, table, rowID, idField string) (Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	idName, err := ValidateIdentifier(idField)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[tableName]
	for i, row := range rows {
		if fmt.Sprint(row[idName]) == rowID {
			s.tables[tableName] = append(rows[:i:i], rows[i+1:]...)
			return cloneRow(row), nil
		}
	}
	return nil, fmt.Errorf("%s: %w", tableName, ErrNotFound)
}

func (s *MemoryStore) Count(ctx context.Context, table string, filters Filters) (int64, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, row := range s.tables[tableName] {
		ok, err := rowMatches(row, filters)
		if err != nil {
			return 0, err
		}
		if ok {
			total++
		}
	}
	return total, nil
}

// uniqueIndexes mirrors the composite unique indexes declared on the models.
var uniqueIndexes = map[string][][]string{
	"notification_events": {{"dedupe_key"}},
	"user_notifications":  {{"event_id", "recipient_user_id"}},
	"push_tokens":         {{"user_id", "token"}},
}

func (s *MemoryStore) checkUnique(table string, candidate Row, skipID string) error {
	for _, index := range uniqueIndexes[table] {
		values := make([]string, 0, len(index))
		missing := false
		for _, col := range index {
			v, ok := candidate[col]
			if !ok || v == nil || fmt.Sprint(v) == "" {
				missing = true
				break
			}
			values = append(values, fmt.Sprint(v))
		}
		if missing {
			continue
		}
		for _, row := range s.tables[table] {
			if skipID != "" && fmt.Sprint(row["id"]) == skipID {
				continue
			}
			same := true
			for i, col := range index {
				if row[col] == nil || fmt.Sprint(row[col]) != values[i] {
					same = false
					break
				}
			}
			if same {
				return fmt.Errorf("%w: duplicate (%s) on %s", ErrConflict, strings.Join(index, ","), table)
			}
		}
	}
	return nil
}

func rowMatches(row Row, filters Filters) (bool, error) {
	for key, expected := range filters {
		column, op, err := parseFilterKey(key)
		if err != nil {
			return false, err
		}
		actual, present := row[column]

		if op == opIsNull {
			isNull := !present || actual == nil
			if truthy(expected) != isNull {
				return false, nil
			}
			continue
		}
		if expected == nil {
			continue
		}

		rv := reflect.ValueOf(expected)
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			if op != opEq {
				return false, fmt.Errorf("filter %q does not support array values", key)
			}
			if rv.Len() == 0 {
				continue
			}
			found := false
			for i := 0; i < rv.Len(); i++ {
				if fmt.Sprint(rv.Index(i).Interface()) == fmt.Sprint(actual) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
			continue
		}

		switch op {
		case opEq:
			if actual == nil || fmt.Sprint(actual) != fmt.Sprint(expected) {
				return false, nil
			}
		case opGt:
			if actual == nil || compareValues(actual, expected) <= 0 {
				return false, nil
			}
		case opGte:
			if actual == nil || compareValues(actual, expected) < 0 {
				return false, nil
			}
		case opLt:
			if actual == nil || compareValues(actual, expected) >= 0 {
				return false, nil
			}
		case opLte:
			if actual == nil || compareValues(actual, expected) > 0 {
				return false, nil
			}
		case opLike:
			if actual == nil || !likeMatch(fmt.Sprint(actual), fmt.Sprint(expected)) {
				return false, nil
			}
		}
	}
	return true, nil
}

// compareValues orders numbers numerically, times chronologically and
// everything else lexically. Mixed time/string pairs compare on the string
// form, which works for RFC3339 and date columns.
func compareValues(a, b any) int {
	fa, aIsNum := asFloat(a)
	fb, bIsNum := asFloat(b)
	if aIsNum && bIsNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}

	ta, aIsTime := a.(time.Time)
	tb, bIsTime := b.(time.Time)
	if aIsTime && bIsTime {
		switch {
		case ta.Before(tb):
			return -1
		case ta.After(tb):
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(stringForm(a), stringForm(b))
}

func stringForm(v any) string {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return fmt.Sprint(v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// likeMatch supports the % wildcard at either end, which covers every LIKE
// filter the jobs issue.
func likeMatch(value, pattern string) bool {
	leading := strings.HasPrefix(pattern, "%")
	trailing := strings.HasSuffix(pattern, "%")
	core := strings.Trim(pattern, "%")
	switch {
	case leading && trailing:
		return strings.Contains(value, core)
	case trailing:
		return strings.HasPrefix(value, core)
	case leading:
		return strings.HasSuffix(value, core)
	default:
		return value == pattern
	}
}

func cloneRow(row Row) Row {
	copied := make(Row, len(row))
	for key, value := range row {
		copied[key] = value
	}
	return copied
}
