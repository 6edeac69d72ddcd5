package model

type Profile struct {
	UserID string `gorm:"column:user_id;primaryKey;size:64" json:"user_id"`
	Role   string `gorm:"column:role;size:32;not null;default:'user'" json:"role"`
}

// TableName returns the database table name.
func (Profile) TableName() string {
	return "profiles"
}
