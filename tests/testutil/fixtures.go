package testutil

import (
	"fmt"
	"time"

	"github.com/horken7/your-mail-buddy/internal/model"
)

// Messages builds n distinct messages with ids "101", "102", ...
func Messages(n int) []model.Message {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	msgs := make([]model.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, model.Message{
			ID:        fmt.Sprintf("%d", 101+i),
			Sender:    fmt.Sprintf("sender%d@example.com", i+1),
			Recipient: "me@example.com",
			SentAt:    base.Add(time.Duration(i) * time.Hour),
			Subject:   fmt.Sprintf("Subject %d", i+1),
			Body:      fmt.Sprintf("Body of message %d", i+1),
		})
	}
	return msgs
}
