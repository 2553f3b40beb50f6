package db

import (
	"context"
	"fmt"
	"time"

	"github.com/gartstein/companytrigger/internal/company/db/models"
	e "github.com/gartstein/companytrigger/internal/company/errors"
	cm "github.com/gartstein/companytrigger/internal/company/models"
	"github.com/gartstein/companytrigger/internal/company/store"
	"google.golang.org/protobuf/types/known/timestamppb"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository implements store.Store on top of a relational database.
// Company records live in the companies table, counter documents in counters.
type Repository struct {
	db *gorm.DB
}

var _ store.Store = (*Repository)(nil)

type Config struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

var companyColumns = map[string]string{
	cm.FieldName:            "name",
	cm.FieldNameInLowerCase: "name_in_lower_case",
	cm.FieldCreatedAt:       "created_at",
}

func NewRepository(cfg *Config) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", e.ErrInvalidInput, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// SQLite allows a single writer; serialize instead of failing with SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&models.Company{}, &models.Counter{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Get(ctx context.Context, ref store.Ref) (*store.Snapshot, error) {
	switch ref.Collection {
	case cm.CompaniesCollection:
		var company models.Company
		// Find reports no rows without an ErrRecordNotFound in the gorm log.
		result := r.db.WithContext(ctx).Where("id = ?", ref.ID).Limit(1).Find(&company)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return &store.Snapshot{Ref: ref}, nil
		}
		return &store.Snapshot{Ref: ref, Exists: true, Data: companyData(&company)}, nil
	case cm.CountsCollection:
		var counter models.Counter
		result := r.db.WithContext(ctx).Where("path = ?", ref.String()).Limit(1).Find(&counter)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return &store.Snapshot{Ref: ref}, nil
		}
		return &store.Snapshot{
			Ref:    ref,
			Exists: true,
			Data:   map[string]any{cm.FieldTotalCount: counter.TotalCount},
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", e.ErrUnsupportedCollection, ref.Collection)
}

// Create writes a company record, reviving a soft-deleted row with the same key.
func (r *Repository) Create(ctx context.Context, ref store.Ref, fields map[string]any) error {
	if ref.Collection != cm.CompaniesCollection {
		return fmt.Errorf("%w: create in %s", e.ErrUnsupportedCollection, ref.Collection)
	}
	company := models.Company{ID: ref.ID}
	if err := assignCompany(&company, fields); err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "name_in_lower_case", "created_at", "updated_at", "deleted_at"}),
		}).
		Create(&company).Error
}

func (r *Repository) Update(ctx context.Context, ref store.Ref, fields map[string]any) error {
	if ref.Collection != cm.CompaniesCollection {
		return fmt.Errorf("%w: update in %s", e.ErrUnsupportedCollection, ref.Collection)
	}
	updates, err := companyUpdates(fields)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", ref.ID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", e.ErrNotFound, ref)
	}
	return nil
}

// SetMerge upserts a document. Increments on counter documents are resolved by
// the database in a single INSERT ... ON CONFLICT statement.
func (r *Repository) SetMerge(ctx context.Context, ref store.Ref, fields map[string]any) error {
	switch ref.Collection {
	case cm.CountsCollection:
		return r.mergeCounter(ctx, ref, fields)
	case cm.CompaniesCollection:
		company := models.Company{ID: ref.ID}
		if err := assignCompany(&company, fields); err != nil {
			return err
		}
		columns := []string{"updated_at", "deleted_at"}
		for field := range fields {
			columns = append(columns, companyColumns[field])
		}
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(columns),
			}).
			Create(&company).Error
	}
	return fmt.Errorf("%w: %s", e.ErrUnsupportedCollection, ref.Collection)
}

func (r *Repository) mergeCounter(ctx context.Context, ref store.Ref, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	raw, ok := fields[cm.FieldTotalCount]
	if !ok || len(fields) != 1 {
		return fmt.Errorf("%w: counters only hold %s", e.ErrInvalidInput, cm.FieldTotalCount)
	}

	counter := models.Counter{Path: ref.String(), UpdatedAt: time.Now()}
	var assignment any
	switch v := raw.(type) {
	case store.Increment:
		counter.TotalCount = v.By
		assignment = gorm.Expr(r.counterColumn()+" + ?", v.By)
	case int64:
		counter.TotalCount = v
		assignment = v
	case int:
		counter.TotalCount = int64(v)
		assignment = int64(v)
	default:
		return fmt.Errorf("%w: %s must be an integer, got %T", e.ErrInvalidInput, cm.FieldTotalCount, raw)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "path"}},
			DoUpdates: clause.Assignments(map[string]any{
				"total_count": assignment,
				"updated_at":  counter.UpdatedAt,
			}),
		}).
		Create(&counter).Error
}

// counterColumn qualifies total_count for the DO UPDATE clause; postgres
// rejects the bare column there as ambiguous.
func (r *Repository) counterColumn() string {
	if r.db.Dialector.Name() == "postgres" {
		return "counters.total_count"
	}
	return "total_count"
}

func (r *Repository) Delete(ctx context.Context, ref store.Ref) error {
	switch ref.Collection {
	case cm.CompaniesCollection:
		return r.db.WithContext(ctx).Delete(&models.Company{}, "id = ?", ref.ID).Error
	case cm.CountsCollection:
		return r.db.WithContext(ctx).Delete(&models.Counter{}, "path = ?", ref.String()).Error
	}
	return fmt.Errorf("%w: %s", e.ErrUnsupportedCollection, ref.Collection)
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func companyData(c *models.Company) map[string]any {
	data := map[string]any{cm.FieldName: c.Name}
	if c.NameInLowerCase != nil {
		data[cm.FieldNameInLowerCase] = *c.NameInLowerCase
	}
	if c.CreatedAt != nil {
		data[cm.FieldCreatedAt] = timestamppb.New(*c.CreatedAt)
	}
	return data
}

func assignCompany(c *models.Company, fields map[string]any) error {
	updates, err := companyUpdates(fields)
	if err != nil {
		return err
	}
	for column, v := range updates {
		switch column {
		case "name":
			c.Name = v.(string)
		case "name_in_lower_case":
			s := v.(string)
			c.NameInLowerCase = &s
		case "created_at":
			t := v.(time.Time)
			c.CreatedAt = &t
		}
	}
	return nil
}

// companyUpdates maps document fields to column values.
func companyUpdates(fields map[string]any) (map[string]any, error) {
	updates := make(map[string]any, len(fields))
	for field, v := range fields {
		column, ok := companyColumns[field]
		if !ok {
			return nil, fmt.Errorf("%w: unknown company field %q", e.ErrInvalidInput, field)
		}
		switch column {
		case "created_at":
			t, err := toTime(v)
			if err != nil {
				return nil, err
			}
			updates[column] = t
		default:
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s must be a string, got %T", e.ErrInvalidInput, field, v)
			}
			updates[column] = s
		}
	}
	return updates, nil
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case *timestamppb.Timestamp:
		if err := t.CheckValid(); err != nil {
			return time.Time{}, fmt.Errorf("%w: %w", e.ErrInvalidInput, err)
		}
		return t.AsTime(), nil
	case time.Time:
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s must be a timestamp, got %T", e.ErrInvalidInput, cm.FieldCreatedAt, v)
}
