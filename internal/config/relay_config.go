package config

import "time"

const (
	// Rooms
	DefaultRoom       = "global"
	PrivateRoomPrefix = "pm:"
	MaxRoomNameLength = 64

	// History
	RecentMessagesLimit = 50
	DefaultPageSize     = 20
	MaxPageSize         = 50

	// Messages
	MaxTextContentLength = 4000
	MaxUsernameLength    = 32

	// Connection
	WriteWait   = 10 * time.Second
	PongWait    = 60 * time.Second
	PingPeriod  = (PongWait * 9) / 10
	GuestPrefix = "Guest-"
)
