package camera

import (
	"fmt"
	"path/filepath"
	"time"
)

// Fixed on-disk layout per camera:
//
//	{root}/{camera_id}/live/...
//	{root}/{camera_id}/recordings/{YYYY-MM-DD}/{HH}/...
//
// The DateLayout and hour directory names are load-bearing: the cleanup
// engine derives a bucket's age from them.

// DateLayout is the directory name format for a recording day.
const DateLayout = "2006-01-02"

// PlaylistName is the index file inside each hour bucket.
const PlaylistName = "playlist.m3u8"

// LivePlaylistName is the rolling live playlist inside the live directory.
const LivePlaylistName = "live.m3u8"

// CameraPath returns the camera's base directory under root.
func CameraPath(root string, id ID) string {
	return filepath.Join(root, string(id))
}

// LivePath returns the camera's live stream directory.
func LivePath(root string, id ID) string {
	return filepath.Join(root, string(id), "live")
}

// RecordingsPath returns the camera's recordings directory.
func RecordingsPath(root string, id ID) string {
	return filepath.Join(root, string(id), "recordings")
}

// BucketPath returns the hour bucket directory for the given wall-clock time.
func BucketPath(root string, id ID, t time.Time) string {
	return filepath.Join(RecordingsPath(root, id), t.Format(DateLayout), fmt.Sprintf("%02d", t.Hour()))
}
