package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/imobcrm/crm-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Client is a lead or customer tracked through the sales pipeline. A nil
// OwnerID means the record sits in the shared lead pool.
type Client struct {
	ID      uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID *uuid.UUID `gorm:"column:owner_id;type:uuid;index"`

	Name        string  `gorm:"column:name;not null"`
	Email       *string `gorm:"column:email"`
	Phone       *string `gorm:"column:phone"`
	Origin      string  `gorm:"column:origin;not null;default:''"`
	Source      string  `gorm:"column:source;not null;default:''"`
	Notes       *string `gorm:"column:notes"`
	ExternalRef *string `gorm:"column:external_ref;uniqueIndex"`

	Status     enums.ClientStatus  `gorm:"column:status;type:text;not null"`
	SaleValue  decimal.NullDecimal `gorm:"column:sale_value;type:numeric(14,2)"`
	IsArchived bool                `gorm:"column:is_archived;not null;default:false;index"`

	// CreatedAt is the registration date. Legacy rows may lack it.
	CreatedAt  *time.Time `gorm:"column:created_at;autoCreateTime:false"`
	FollowUpAt *time.Time `gorm:"column:follow_up_at;index"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	CustomFields datatypes.JSONMap `gorm:"column:custom_fields;type:jsonb"`

	Events []ClientEvent `gorm:"foreignKey:ClientID;constraint:OnDelete:CASCADE"`
}

func (c *Client) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ClientEvent is one append-only timeline entry.
type ClientEvent struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	ClientID   uuid.UUID               `gorm:"column:client_id;type:uuid;not null;index"`
	Type       enums.TimelineEventType `gorm:"column:type;type:text;not null"`
	Content    *string                 `gorm:"column:content"`
	AuthorID   *uuid.UUID              `gorm:"column:author_id;type:uuid"`
	OccurredAt time.Time               `gorm:"column:occurred_at;not null;index"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (e *ClientEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
