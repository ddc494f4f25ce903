package repositories

import (
	"context"
	"net/url"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"natours-api/utils"
)

type Scope func(*gorm.DB) *gorm.DB

// Repository is the persistence half of the generic resource handlers.
// Scopes are applied to every read, update and delete it performs.
type Repository[T any] struct {
	db       *gorm.DB
	fields   utils.FieldSet
	scopes   []Scope
	preloads []string

	// preloadScopes filter associations by name whenever they are preloaded.
	preloadScopes map[string]Scope
}

func NewRepository[T any](db *gorm.DB, fields utils.FieldSet, scopes ...Scope) *Repository[T] {
	return &Repository[T]{db: db, fields: fields, scopes: scopes}
}

// WithListPreloads returns a copy that expands the given associations on List.
func (r *Repository[T]) WithListPreloads(preloads ...string) *Repository[T] {
	clone := *r
	clone.preloads = preloads
	return &clone
}

// WithPreloadScope returns a copy that applies scope every time association
// is preloaded, by List, FindByID or a nested path.
func (r *Repository[T]) WithPreloadScope(association string, scope Scope) *Repository[T] {
	clone := *r
	clone.preloadScopes = make(map[string]Scope, len(r.preloadScopes)+1)
	for name, s := range r.preloadScopes {
		clone.preloadScopes[name] = s
	}
	clone.preloadScopes[association] = scope
	return &clone
}

// WithTx returns a copy bound to tx.
func (r *Repository[T]) WithTx(tx *gorm.DB) *Repository[T] {
	clone := *r
	clone.db = tx
	return &clone
}

func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

func (r *Repository[T]) Fields() utils.FieldSet {
	return r.fields
}

func (r *Repository[T]) scoped(ctx context.Context) *gorm.DB {
	db := r.db.WithContext(ctx).Model(new(T))
	for _, scope := range r.scopes {
		db = db.Scopes(scope)
	}
	return db
}

func (r *Repository[T]) preload(db *gorm.DB, associations []string) *gorm.DB {
	for _, name := range associations {
		scope, ok := r.preloadScopes[name]
		if !ok {
			db = db.Preload(name)
			continue
		}
		db = db.Preload(name, func(tx *gorm.DB) *gorm.DB { return scope(tx) })
	}
	return db
}

// List shapes the query from the query string. where holds fixed equality
// constraints, such as the parent tour of nested reviews.
func (r *Repository[T]) List(ctx context.Context, query url.Values, where map[string]interface{}) ([]T, *utils.APIFeatures, error) {
	db := r.scoped(ctx)
	if len(where) > 0 {
		db = db.Where(where)
	}
	db = r.preload(db, r.preloads)

	features := utils.NewAPIFeatures(db, query, r.fields).Apply()

	records := make([]T, 0)
	if err := features.Query.Find(&records).Error; err != nil {
		return nil, nil, errors.WithStack(err)
	}
	return records, features, nil
}

// FindByID returns gorm.ErrRecordNotFound when no record matches.
func (r *Repository[T]) FindByID(ctx context.Context, id string, preloads ...string) (*T, error) {
	db := r.preload(r.scoped(ctx), preloads)

	record := new(T)
	if err := db.Where("id = ?", id).First(record).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	return record, nil
}

// Create inserts record without its associations; resource repositories
// write those explicitly.
func (r *Repository[T]) Create(ctx context.Context, record *T) error {
	return errors.WithStack(r.db.WithContext(ctx).Omit(clause.Associations).Create(record).Error)
}

// Update writes only the given columns of record.
func (r *Repository[T]) Update(ctx context.Context, record *T, columns []string) error {
	if len(columns) == 0 {
		return nil
	}
	return errors.WithStack(r.db.WithContext(ctx).Model(record).Select(columns).Updates(record).Error)
}

// UpdateColumns sets raw column values on the record with the given id.
func (r *Repository[T]) UpdateColumns(ctx context.Context, id string, values map[string]interface{}) error {
	result := r.scoped(ctx).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return errors.WithStack(result.Error)
	}
	return nil
}

func (r *Repository[T]) Delete(ctx context.Context, id string) error {
	result := r.scoped(ctx).Where("id = ?", id).Delete(new(T))
	if result.Error != nil {
		return errors.WithStack(result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.WithStack(gorm.ErrRecordNotFound)
	}
	return nil
}
