package models

const DefaultMaxMembers = 8

// FamilyGroup is a bounded membership unit led by exactly one user. The unique
// index on LeaderID is what enforces "one group per leader" even under
// concurrent creation; Members is the reverse side of users.group_id, and the
// SET NULL constraint makes group deletion detach every member in the store
// rather than in engine code.
type FamilyGroup struct {
	BaseModel
	ShortID    string `json:"shortId" gorm:"type:varchar(8);uniqueIndex;not null"`
	LeaderID   string `json:"leaderId" gorm:"type:varchar(8);uniqueIndex;not null"`
	AppToken   string `json:"appToken" gorm:"type:varchar(8);uniqueIndex;not null"`
	MaxMembers int    `json:"maxMembers" gorm:"not null;default:8"`
	Members    []User `json:"members,omitempty" gorm:"foreignKey:GroupID;references:ShortID;constraint:OnDelete:SET NULL"`
}
