package customer

// Tier classifies a customer by lifetime points earned. Each tier carries a
// reward multiplier in hundredths (100 = 1.0x).
type Tier string

const (
	TierBronze   Tier = "bronze"   // [0, 1000)
	TierSilver   Tier = "silver"   // [1000, 10000)
	TierGold     Tier = "gold"     // [10000, 50000)
	TierPlatinum Tier = "platinum" // [50000, ∞)
)

const (
	SilverThreshold   uint64 = 1_000
	GoldThreshold     uint64 = 10_000
	PlatinumThreshold uint64 = 50_000
)

// TierOf derives the tier from lifetime points earned. It must be re-applied
// after every mutation of TotalEarned so the cached tier field stays true.
func TierOf(totalEarned uint64) Tier {
	switch {
	case totalEarned >= PlatinumThreshold:
		return TierPlatinum
	case totalEarned >= GoldThreshold:
		return TierGold
	case totalEarned >= SilverThreshold:
		return TierSilver
	default:
		return TierBronze
	}
}

// Multiplier returns the tier reward multiplier in hundredths.
func (t Tier) Multiplier() uint64 {
	switch t {
	case TierSilver:
		return 125
	case TierGold:
		return 150
	case TierPlatinum:
		return 200
	default:
		return 100
	}
}

// Ordinal is the tier position used on append-only transaction records.
func (t Tier) Ordinal() uint8 {
	switch t {
	case TierSilver:
		return 1
	case TierGold:
		return 2
	case TierPlatinum:
		return 3
	default:
		return 0
	}
}
