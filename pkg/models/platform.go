package models

// Platform identifies a messaging platform a channel can render to.
type Platform string

const (
	PlatformLINE     Platform = "line"
	PlatformFacebook Platform = "facebook"
	PlatformWebchat  Platform = "webchat"
)

// AllPlatforms lists every platform the core knows how to render for.
var AllPlatforms = []Platform{PlatformLINE, PlatformFacebook, PlatformWebchat}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	switch p {
	case PlatformLINE, PlatformFacebook, PlatformWebchat:
		return true
	}
	return false
}
