package config

import (
	"fmt"
	"net/url"
	"strings"
)

// RoomPathPrefix is the relay path rooms are served under.
const RoomPathPrefix = "/ws/rooms/"

// RoomURL joins a relay base URL with the room path and username query.
func RoomURL(base string, roomID int64, username string) string {
	q := url.Values{}
	q.Set("username", username)
	return fmt.Sprintf("%s%s%d?%s", strings.TrimRight(base, "/"), RoomPathPrefix, roomID, q.Encode())
}
