package trees

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

const treeSequenceName = "tree_records"

var (
	// ErrTreeNotFound indicates the addressed record does not exist.
	ErrTreeNotFound = errors.New("trees: tree not found")
	// ErrDuplicateTree indicates an insert collided on unique_id.
	ErrDuplicateTree = errors.New("trees: tree with this id already exists")

	errMissingStoreDatabase = errors.New("trees: store database handle is required")
)

// SequenceCounter backs atomic assignment of the legacy numeric identifier.
// A single named row is incremented inside a transaction; the old
// read-max-then-add-one pattern is not used because it races under
// concurrent inserts.
type SequenceCounter struct {
	Name  string `gorm:"column:name;primaryKey;size:64;not null"`
	Value int64  `gorm:"column:value;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SequenceCounter) TableName() string {
	return "sequence_counters"
}

// ListCriteria filters and paginates record listings.
type ListCriteria struct {
	UserID string
	Cidade string
	Search string
	Page   int
	Limit  int
}

// Store is the persistent collection of tree records.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a database handle into the record store.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errMissingStoreDatabase
	}
	return &Store{db: db}, nil
}

// FindByUniqueID returns the record with the given id, or nil when absent.
func (s *Store) FindByUniqueID(ctx context.Context, uniqueID string) (*TreeRecord, error) {
	var record TreeRecord
	err := s.db.WithContext(ctx).
		Where("unique_id = ?", uniqueID).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Insert persists a new record. The unique_id primary key makes a concurrent
// double-create resolve as ErrDuplicateTree for the losing writer.
func (s *Store) Insert(ctx context.Context, record *TreeRecord) error {
	err := s.db.WithContext(ctx).Create(record).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint") {
		return ErrDuplicateTree
	}
	return err
}

// UpdateFields applies a column-level partial update to the addressed record.
func (s *Store) UpdateFields(ctx context.Context, uniqueID string, fields map[string]interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&TreeRecord{}).
		Where("unique_id = ?", uniqueID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTreeNotFound
	}
	return nil
}

// Delete removes the addressed record. Deletion is physical.
func (s *Store) Delete(ctx context.Context, uniqueID string) error {
	result := s.db.WithContext(ctx).
		Where("unique_id = ?", uniqueID).
		Delete(&TreeRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTreeNotFound
	}
	return nil
}

// ListFiltered returns one page of records ordered by data_cadastro
// descending plus the total match count.
func (s *Store) ListFiltered(ctx context.Context, criteria ListCriteria) ([]TreeRecord, int64, error) {
	page := criteria.Page
	if page < 1 {
		page = 1
	}
	limit := criteria.Limit
	if limit < 1 {
		limit = defaultListLimit
	}

	query := s.db.WithContext(ctx).Model(&TreeRecord{})
	if criteria.UserID != "" {
		query = query.Where("user_id = ?", criteria.UserID)
	}
	if criteria.Cidade != "" {
		query = query.Where("LOWER(cidade) LIKE ?", containsPattern(criteria.Cidade))
	}
	if criteria.Search != "" {
		// quadra is deliberately excluded from the search field set.
		pattern := containsPattern(criteria.Search)
		query = query.Where(
			"LOWER(cidade) LIKE ? OR LOWER(nome_popular) LIKE ? OR LOWER(user_name) LIKE ? OR LOWER(cep) LIKE ? OR LOWER(numero_arvore) LIKE ?",
			pattern, pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []TreeRecord
	err := query.
		Order("data_cadastro DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// NextSequenceID atomically assigns the next value of the monotonic numeric
// identifier, starting at 1 for an empty store.
func (s *Store) NextSequenceID(ctx context.Context) (int64, error) {
	var next int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&SequenceCounter{}).
			Where("name = ?", treeSequenceName).
			Update("value", gorm.Expr("value + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := tx.Create(&SequenceCounter{Name: treeSequenceName, Value: 1}).Error; err != nil {
				return err
			}
			next = 1
			return nil
		}
		var counter SequenceCounter
		if err := tx.Where("name = ?", treeSequenceName).Take(&counter).Error; err != nil {
			return err
		}
		next = counter.Value
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func containsPattern(term string) string {
	return "%" + strings.ToLower(term) + "%"
}
