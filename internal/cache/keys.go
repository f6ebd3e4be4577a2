package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// LastBatchKey holds the most recent batch report of any judge type.
const LastBatchKey = "evaluator:batch:last"

func BatchReportKey(batchID uuid.UUID) string {
	return fmt.Sprintf("evaluator:batch:%s", batchID)
}

func RateLimitKey(client string) string {
	return fmt.Sprintf("ratelimit:%s", client)
}
