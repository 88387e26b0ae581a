package model

import (
	"time"
)

// Shop 店铺，走缓存读取的普通实体
type Shop struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name      string  `gorm:"size:128;not null" json:"name"`
	TypeID    uint    `gorm:"not null;index" json:"type_id"`
	Images    string  `gorm:"size:1024" json:"images"`
	Area      string  `gorm:"size:128" json:"area"`
	Address   string  `gorm:"size:255" json:"address"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	AvgPrice  int64   `json:"avg_price"`
	Sold      int     `json:"sold"`
	Comments  int     `json:"comments"`
	Score     int     `json:"score"` // 1~5 分，乘 10 保存
	OpenHours string  `gorm:"size:32" json:"open_hours"`
}

func (Shop) TableName() string { return "shops" }
