package model

// Language is a pure lookup entity keyed by name.
type Language struct {
	Model
	Name string `json:"name" gorm:"column:name;type:varchar(100);not null;uniqueIndex"`
}

func (l *Language) TableName() string {
	return "languages"
}
