package storage

import (
	"context"
	"time"

	"tracker/pkg/conn"
	"tracker/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// object is one stored document. (namespace, key) is unique so a repeated
// Put replaces the previous value.
type object struct {
	Namespace string    `gorm:"column:namespace;primaryKey"`
	Key       string    `gorm:"column:key;primaryKey"`
	Value     []byte    `gorm:"column:value;type:bytea;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (object) TableName() string {
	return "objects"
}

// Postgres stores objects as rows of the objects table.
type Postgres struct {
	client    *conn.Client
	db        *gorm.DB
	namespace string
	now       func() time.Time
}

// NewPostgres connects, migrates the objects table and scopes writes to namespace.
func NewPostgres(ctx context.Context, opt conn.Option, namespace string) (*Postgres, error) {
	if namespace == "" {
		return nil, errors.Wrap(exception.ErrStorageEmptyNamespace, "postgres namespace")
	}
	client, err := conn.New(ctx, opt)
	if err != nil {
		return nil, err
	}
	db := client.DB()
	if err := db.WithContext(ctx).AutoMigrate(&object{}); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "migrate objects table")
	}
	return &Postgres{client: client, db: db, namespace: namespace, now: time.Now}, nil
}

func (p *Postgres) Put(ctx context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	row := object{
		Namespace: p.namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: p.now().UTC(),
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return errors.Wrapf(err, "upsert %s/%s", p.namespace, key)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.client.Close()
}
