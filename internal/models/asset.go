package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AssetSlot names one of the two per-user image attachments
type AssetSlot string

const (
	AvatarSlot AssetSlot = "avatar"
	CoverSlot  AssetSlot = "cover image"
)

// Folder is the object-store prefix the slot's uploads land under
func (s AssetSlot) Folder() string {
	if s == CoverSlot {
		return "covers"
	}
	return "avatars"
}

// AssetURL returns the URL currently held in slot, or nil
func (u *User) AssetURL(slot AssetSlot) *string {
	if slot == CoverSlot {
		return u.CoverImageURL
	}
	return u.AvatarURL
}

// SetAssetURL points slot at url; nil clears it
func (u *User) SetAssetURL(slot AssetSlot, url *string) {
	if slot == CoverSlot {
		u.CoverImageURL = url
		return
	}
	u.AvatarURL = url
}

// OrphanedAsset records an uploaded object whose URL never made it into
// the users table (MongoDB)
type OrphanedAsset struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID    string             `json:"user_id" bson:"user_id"`
	Operation string             `json:"operation" bson:"operation"`
	URL       string             `json:"url" bson:"url"`
	Reason    string             `json:"reason" bson:"reason"`
	CleanedUp bool               `json:"cleaned_up" bson:"cleaned_up"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}
