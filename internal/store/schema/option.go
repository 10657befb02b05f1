package schema

import "time"

// DefaultOptionTable is the base name of the options table before any prefix is applied
const DefaultOptionTable = "simple_options"

// Option stores one persisted setting. Value holds the raw string, or the JSON
// encoding of a non-string value when IsJSON is set.
type Option struct {
	ID          uint64    `gorm:"column:id;primaryKey"`
	Key         string    `gorm:"column:key;type:varchar(255);not null"`
	Value       string    `gorm:"column:value;type:text"`
	IsJSON      bool      `gorm:"column:isJson"`
	Autoload    bool      `gorm:"column:autoload"`
	DateCreated time.Time `gorm:"column:dateCreated;not null"`
	DateUpdated time.Time `gorm:"column:dateUpdated;not null"`
}

func (Option) TableName() string {
	return DefaultOptionTable
}
