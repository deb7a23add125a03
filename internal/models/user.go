package models

// User is a person tracked by the service, either a family-group leader or a
// plain member. ShortID is the caller-facing key; the uuid in BaseModel never
// leaves the storage layer as a reference.
type User struct {
	BaseModel
	ShortID          string  `json:"shortId" gorm:"type:varchar(8);uniqueIndex;not null"`
	IdentityKey      string  `json:"identityKey" gorm:"type:varchar(32);uniqueIndex;not null"`
	Email            string  `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Username         string  `json:"username" gorm:"type:varchar(100);not null"`
	PasswordHash     string  `json:"-" gorm:"type:text;not null"`
	FirstName        string  `json:"firstName" gorm:"type:varchar(100)"`
	LastNamePaternal string  `json:"lastNamePaternal" gorm:"type:varchar(100)"`
	LastNameMaternal string  `json:"lastNameMaternal" gorm:"type:varchar(100)"`
	IsActive         bool    `json:"isActive" gorm:"not null;default:true"`
	IsLeader         bool    `json:"isLeader" gorm:"not null;default:false"`
	GroupID          *string `json:"groupId" gorm:"type:varchar(8);index"`
}
