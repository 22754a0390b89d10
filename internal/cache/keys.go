package cache

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/gudang/pkg/models"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

// RateLimitKey counts requests per API key. Keys sharing a lookup prefix
// still get separate budgets.
func RateLimitKey(keyID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", keyID)
}

// QueueKey is the Redis list workers of kind block on.
func QueueKey(kind models.JobKind) string {
	return fmt.Sprintf("queue:%s", kind)
}
