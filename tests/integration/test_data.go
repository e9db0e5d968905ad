package integration

import (
	"fmt"
	"time"
)

// TestPassword satisfies the complexity rules applied at registration
const TestPassword = "TestPassword123"

// TestCredentials generates unique account credentials using a timestamp
func TestCredentials(suffix string) (username, email string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("user-%d-%s", ts, suffix)
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	return
}
