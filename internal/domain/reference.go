package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const referencePrefix = "TXN"

// NewReference builds a human-legible transfer reference such as
// TXN-3F9A0C11B2D4-1760601600
func NewReference(now time.Time) string {
	random := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:12]
	return fmt.Sprintf("%s-%s-%d", referencePrefix, random, now.Unix())
}
