package utils

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"time"
)

// GenerateTurnCredentials returns time-limited TURN credentials in the
// coturn REST API format: the username is "<expiry-unix>:<user>" and the
// password is base64(HMAC-SHA1(secret, username)).
func GenerateTurnCredentials(userID, sharedSecret string, expires time.Time) (string, string) {
	username := fmt.Sprintf("%d:%s", expires.Unix(), userID)

	mac := hmac.New(sha1.New, []byte(sharedSecret))
	mac.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return username, password
}
