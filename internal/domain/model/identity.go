package model

// Identity is the (platform user, device) pair every request is made as.
type Identity struct {
	PlatformUserID int64
	DeviceID       string
	DisplayName    string
}
