package cache

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	pendingRoomsKey = "pending:rooms"
	dirtyChunksKey  = "dirty:chunks"
)

func chunkKey(roomID string, n int) string { return fmt.Sprintf("room:%s:chunk:%d", roomID, n) }
func latestKey(roomID string) string       { return "room:" + roomID + ":latest" }
func pendingKey(roomID string) string      { return "room:" + roomID + ":pending" }
func metaKey(roomID string) string         { return "room:" + roomID + ":meta" }
func unreadKey(roomID string) string       { return "room:" + roomID + ":unread" }
func lockKey(roomID string) string         { return "lock:room:" + roomID }
func usersKey(roomID string) string        { return "room:" + roomID + ":users" }
func contactsKey(userID string) string     { return "user:" + userID + ":contacts" }
func statusKey(userID string) string       { return "user:" + userID + ":status" }

const (
	lastMessageField = "lastMessage"
	readFieldPrefix  = "read:"
)

// dirtyMember encodes a chunk in the dirty index. Room ids may contain
// '|' so the chunk number is taken from the last separator.
func dirtyMember(roomID string, n int) string { return roomID + "|" + strconv.Itoa(n) }

func parseDirtyMember(member string) (string, int, bool) {
	i := strings.LastIndexByte(member, '|')
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(member[i+1:])
	if err != nil {
		return "", 0, false
	}
	return member[:i], n, true
}
