package queryset

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned by GormSource.Get when no record matches.
	ErrNotFound = errors.New("queryset: record not found")
	// ErrMultipleRecords is returned by GormSource.Get when more than one record matches.
	ErrMultipleRecords = errors.New("queryset: more than one record matched")
)

// GormSource reads records through gorm. The table comes from Model.Table when
// set, otherwise from the destination type.
type GormSource struct {
	DB *gorm.DB
}

var _ Source = GormSource{}

func (s GormSource) query(ctx context.Context, m Model, cond map[string]any) *gorm.DB {
	tx := s.DB.WithContext(ctx)
	if m.Table != "" {
		tx = tx.Table(m.Table)
	}
	if len(cond) > 0 {
		tx = tx.Where(cond)
	}
	return tx
}

// Get loads the single record matching cond into dest, a pointer to a struct.
// It reads at most two rows to tell a unique match from an ambiguous one.
func (s GormSource) Get(ctx context.Context, m Model, dest any, cond map[string]any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("queryset: get %s: dest must be a non-nil pointer, got %T", m, dest)
	}
	rows := reflect.New(reflect.SliceOf(dv.Elem().Type()))
	if err := s.query(ctx, m, cond).Limit(2).Find(rows.Interface()).Error; err != nil {
		return fmt.Errorf("queryset: get %s: %w", m, err)
	}
	switch n := rows.Elem().Len(); n {
	case 0:
		return fmt.Errorf("%w: %s %v", ErrNotFound, m, cond)
	case 1:
		dv.Elem().Set(rows.Elem().Index(0))
		return nil
	default:
		return fmt.Errorf("%w: %s %v", ErrMultipleRecords, m, cond)
	}
}

func (s GormSource) Filter(ctx context.Context, m Model, dest any, cond map[string]any) error {
	if err := s.query(ctx, m, cond).Find(dest).Error; err != nil {
		return fmt.Errorf("queryset: filter %s: %w", m, err)
	}
	return nil
}
