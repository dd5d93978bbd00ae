package cache

import "fmt"

func KeySelection(sessionID string) string {
	return fmt.Sprintf("session:%s:selection", sessionID)
}
