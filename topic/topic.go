// Package topic builds the pub/sub topic names used by device RPC.
//
// Every device owns a namespace under its user:
//
//	users/{userId}/devices/{deviceId}/rpc/request   caller -> device
//	users/{userId}/devices/{deviceId}/rpc/response  device -> caller
//	users/{userId}/devices/{deviceId}/status        last will / presence
package topic

import "strings"

func base(userID, deviceID string) string {
	return "users/" + userID + "/devices/" + deviceID
}

// Request returns the topic a device listens on for RPC requests.
func Request(userID, deviceID string) string {
	return base(userID, deviceID) + "/rpc/request"
}

// Response returns the topic a device publishes RPC responses to.
func Response(userID, deviceID string) string {
	return base(userID, deviceID) + "/rpc/response"
}

// Status returns the presence topic used for the last-will message.
func Status(userID, deviceID string) string {
	return base(userID, deviceID) + "/status"
}

// Match reports whether topic matches an MQTT style filter.
// "+" matches exactly one level, a trailing "#" matches any remaining levels.
func Match(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return i == len(fl)-1
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
