package lockmgr

import (
	"github.com/google/uuid"
)

// generateOwnerID creates a new unique owner ID
func generateOwnerID() string {
	return uuid.NewString()
}
