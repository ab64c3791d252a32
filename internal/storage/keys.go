package storage

import (
	"fmt"
	"strings"
)

// pictureExtensions maps the accepted profile picture content types to file extensions.
var pictureExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpeg",
	"image/webp": "webp",
	"image/avif": "avif",
	"image/tiff": "tiff",
}

// PictureExtension returns the file extension for an accepted picture content type.
func PictureExtension(contentType string) (string, bool) {
	ext, ok := pictureExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	return ext, ok
}

// UserPrefix is the key prefix under which all of a user's objects live.
func UserPrefix(userID string) string {
	return fmt.Sprintf("users/%s/", userID)
}

// ProfilePictureKey is the object key of a user's current profile picture.
func ProfilePictureKey(userID, ext string) string {
	return UserPrefix(userID) + "profile-pic." + ext
}

// PublicURL joins the public base URL with key. Without a base URL the bare key is returned.
func PublicURL(baseURL, key string) string {
	if baseURL == "" {
		return key
	}
	return strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimLeft(key, "/")
}
