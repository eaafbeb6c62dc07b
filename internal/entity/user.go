package entity

// User is a durable dating profile. Identity comes from the transport's
// stable numeric sender ID, so there is no separate account table.
type User struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Handle    string    `gorm:"column:handle"`
	Name      string    `gorm:"not null;column:name"`
	Age       int       `gorm:"not null;column:age"`
	Bio       string    `gorm:"not null;column:bio"`
	MediaRef  string    `gorm:"not null;column:media_ref"`
	MediaKind MediaKind `gorm:"not null;column:media_kind"`

	// Both set or both nil. Location arrives in a later registration
	// step and may stay unset forever.
	Latitude  *float64 `gorm:"column:latitude"`
	Longitude *float64 `gorm:"column:longitude"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) HasLocation() bool {
	return u.Latitude != nil && u.Longitude != nil
}
