package models

import "gorm.io/gorm"

// FriendRequest represents a friend request between two users
type FriendRequest struct {
	gorm.Model
	SenderID   uint   `json:"sender_id" gorm:"index"`   // User ID of the sender
	ReceiverID uint   `json:"receiver_id" gorm:"index"` // User ID of the receiver
	Status     string `json:"status" gorm:"type:varchar(20);default:'pending'"` // e.g., "pending", "accepted", "rejected"
}

// CreateFriendRequest defines the request body for sending a friend request
type CreateFriendRequest struct {
	ReceiverID uint `json:"receiver_id" validate:"required"`
}

// UpdateFriendRequest defines the request body for accepting/rejecting a friend request
type UpdateFriendRequest struct {
	Status string `json:"status" validate:"required,oneof=accepted rejected"`
}

// Accepted friendships are queried straight off the friend_requests table;
// the story feed only needs the id set of accepted friends.