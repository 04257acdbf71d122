package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStore implements TableAPI over the shared GORM connection. Identifiers
// are validated before ever reaching a query string; values always travel as
// bind parameters.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) List(ctx context.Context, table string, filters Filters, opts ListOptions) ([]Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	q := s.DB.WithContext(ctx).Table(tableName)
	q, err = applyFilters(q, filters)
	if err != nil {
		return nil, err
	}

	order, err := orderColumn(opts)
	if err != nil {
		return nil, err
	}
	direction := "DESC"
	if opts.Ascending {
		direction = "ASC"
	}

	var rows []map[string]any
	err = q.Order(fmt.Sprintf("`%s` %s", order, direction)).
		Limit(clampLimit(opts.Limit)).
		Offset(max(opts.Offset, 0)).
		Find(&rows).Error
	if err != nil {
		return nil, mapDBError(err)
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, normalizeRow(r))
	}
	return out, nil
}

func (s *GormStore) Get(ctx context.Context, table, rowID, idField string) (Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	idName, err := ValidateIdentifier(idField)
	if err != nil {
		return nil, err
	}

	var row map[string]any
	err = s.DB.WithContext(ctx).Table(tableName).
		Where(fmt.Sprintf("`%s` = ?", idName), rowID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", tableName, ErrNotFound)
	}
	if err != nil {
		return nil, mapDBError(err)
	}
	return normalizeRow(row), nil
}

func (s *GormStore) Create(ctx context.Context, table string, fields Row) (Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("could not create %s record: no fields", tableName)
	}

	record := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		col, err := ValidateIdentifier(key)
		if err != nil {
			return nil, err
		}
		record[col] = encodeValue(value)
	}
	if _, ok := record["id"]; !ok {
		record["id"] = uuid.NewString()
	}

	if err := s.DB.WithContext(ctx).Table(tableName).Create(record).Error; err != nil {
		return nil, mapDBError(err)
	}
	return s.Get(ctx, table, fmt.Sprint(record["id"]), "id")
}

func (s *GormStore) Update(ctx context.Context, table, rowID string, patch Row, idField string) (Row, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return nil, err
	}
	idName, err := ValidateIdentifier(idField)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 {
		return nil, errors.New("no fields to update")
	}

	updates := make(map[string]any, len(patch))
	for key, value := range patch {
		col, err := ValidateIdentifier(key)
		if err != nil {
			return nil, err
		}
		updates[col] = encodeValue(value)
	}

	res := s.DB.WithContext(ctx).Table(tableName).
		Where(fmt.Sprintf("`%s` = ?", idName), rowID).
		Updates(updates)
	if res.Error != nil {
		return nil, mapDBError(res.Error)
	}
	return s.Get(ctx, table, rowID, idField)
}

func (s *GormStore) Delete(ctx context.Context, table, rowID, idField string) (Row, error) {
	existing, err := s.Get(ctx, table, rowID, idField)
	if err != nil {
		return nil, err
	}
	tableName, _ := ValidateTable(table)
	idName, _ := ValidateIdentifier(idField)

	err = s.DB.WithContext(ctx).Table(tableName).
		Where(fmt.Sprintf("`%s` = ?", idName), rowID).
		Delete(nil).Error
	if err != nil {
		return nil, mapDBError(err)
	}
	return existing, nil
}

func (s *GormStore) Count(ctx context.Context, table string, filters Filters) (int64, error) {
	tableName, err := ValidateTable(table)
	if err != nil {
		return 0, err
	}
	q := s.DB.WithContext(ctx).Table(tableName)
	q, err = applyFilters(q, filters)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return 0, mapDBError(err)
	}
	return total, nil
}

func applyFilters(q *gorm.DB, filters Filters) (*gorm.DB, error) {
	for key, value := range filters {
		column, op, err := parseFilterKey(key)
		if err != nil {
			return nil, err
		}

		if op == opIsNull {
			if truthy(value) {
				q = q.Where(fmt.Sprintf("`%s` IS NULL", column))
			} else {
				q = q.Where(fmt.Sprintf("`%s` IS NOT NULL", column))
			}
			continue
		}
		if value == nil {
			continue
		}

		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			if op != opEq {
				return nil, fmt.Errorf("filter %q does not support array values", key)
			}
			if rv.Len() == 0 {
				continue
			}
			q = q.Where(fmt.Sprintf("`%s` IN ?", column), value)
			continue
		}

		switch op {
		case opEq:
			q = q.Where(fmt.Sprintf("`%s` = ?", column), value)
		case opGt:
			q = q.Where(fmt.Sprintf("`%s` > ?", column), value)
		case opGte:
			q = q.Where(fmt.Sprintf("`%s` >= ?", column), value)
		case opLt:
			q = q.Where(fmt.Sprintf("`%s` < ?", column), value)
		case opLte:
			q = q.Where(fmt.Sprintf("`%s` <= ?", column), value)
		case opLike:
			q = q.Where(fmt.Sprintf("`%s` LIKE ?", column), fmt.Sprint(value))
		}
	}
	return q, nil
}

// encodeValue serializes nested objects to JSON for json columns; scalars
// pass through as bind parameters.
func encodeValue(value any) any {
	switch value.(type) {
	case map[string]any, []any, []string:
		raw, err := json.Marshal(value)
		if err != nil {
			return value
		}
		return string(raw)
	default:
		return value
	}
}

// normalizeRow converts driver []byte values to strings so callers can read
// fields uniformly across the GORM and in-memory stores.
func normalizeRow(row map[string]any) Row {
	for key, value := range row {
		if raw, ok := value.([]byte); ok {
			row[key] = string(raw)
		}
	}
	return row
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func mapDBError(err error) error {
	if isDuplicateKeyErr(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
