package redemption

import (
	"fmt"
)

// codePrefix brands every redemption code handed to a customer.
const codePrefix = "SLCY"

// redemptionCode derives the human-readable voucher code from the voucher's
// snowflake seed. Two four-hex-digit groups are enough for verbal exchange at
// a counter; uniqueness comes from the voucher id, the code is only a handle.
func redemptionCode(seed int64) string {
	if seed < 0 {
		seed = -seed
	}
	return fmt.Sprintf("%s-%04X-%04X", codePrefix, seed%10000, (seed/10000)%10000)
}
