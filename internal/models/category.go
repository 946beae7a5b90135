package models

type Category struct {
	ID   string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Slug string `json:"slug" gorm:"uniqueIndex;not null"`
	Name string `json:"name" gorm:"not null"`
}
