package camera

import "fmt"

// ID uniquely identifies a camera. It doubles as a filesystem path segment
// under the storage root, so it must pass SanitizeID before use.
type ID string

// Encoding holds the encoder parameters applied to a camera's stream.
type Encoding struct {
	VideoBitrate   string
	AudioBitrate   string
	Threads        int
	SegmentSeconds int
	ListSize       int
}

// Config is the static configuration of one camera. Immutable after the
// registry is loaded; changing it requires restarting the affected stream.
type Config struct {
	ID      ID
	Name    string
	RTSPURL string // contains credentials; never log it verbatim
	Enabled bool
	Enc     Encoding
}

// RedactedURL returns the RTSP URL with any userinfo replaced, safe for logs.
func (c Config) RedactedURL() string {
	return redactURL(c.RTSPURL)
}

func (c Config) String() string {
	return fmt.Sprintf("camera %s (%s)", c.ID, c.Name)
}
