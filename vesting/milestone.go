package vesting

// milestone is one row of the unlock schedule. Index 0 is the implicit
// "nothing reached" row.
type milestone struct {
	index     uint8
	marketCap uint64
	percent   uint8
}

// milestones is ascending by market cap. Index 8 jumps straight to 100%.
var milestones = []milestone{
	{index: 0, marketCap: 0, percent: 0},
	{index: 1, marketCap: 45_000, percent: 10},
	{index: 2, marketCap: 105_500, percent: 20},
	{index: 3, marketCap: 225_000, percent: 30},
	{index: 4, marketCap: 395_000, percent: 40},
	{index: 5, marketCap: 650_000, percent: 50},
	{index: 6, marketCap: 997_000, percent: 60},
	{index: 7, marketCap: 1_574_000, percent: 70},
	{index: 8, marketCap: 2_500_000, percent: 100},
}

// MaxMilestone is the last schedule index
const MaxMilestone uint8 = 8

// MilestonePercentage maps a market cap reading to the unlocked percentage.
// Thresholds are checked from the highest down, first match wins.
func MilestonePercentage(marketCap uint64) uint8 {
	for i := len(milestones) - 1; i > 0; i-- {
		if marketCap >= milestones[i].marketCap {
			return milestones[i].percent
		}
	}
	return 0
}

// PercentageForIndex maps a stored milestone index to its percentage.
// Unknown indexes map to 0.
func PercentageForIndex(index uint8) uint8 {
	if int(index) >= len(milestones) {
		return 0
	}
	return milestones[index].percent
}

// IndexForPercentage is the inverse of PercentageForIndex
func IndexForPercentage(percent uint8) (uint8, bool) {
	for _, m := range milestones {
		if m.percent == percent {
			return m.index, true
		}
	}
	return 0, false
}

// checkMilestoneTable verifies both lookup directions agree
func checkMilestoneTable() error {
	for i, m := range milestones {
		if int(m.index) != i {
			return inconsistent("milestone row %d has index %d", i, m.index)
		}
		if i > 0 && (m.marketCap <= milestones[i-1].marketCap || m.percent <= milestones[i-1].percent) {
			return inconsistent("milestone row %d is not ascending", i)
		}
		if got := MilestonePercentage(m.marketCap); got != m.percent {
			return inconsistent("market cap %d maps to %d%%, want %d%%", m.marketCap, got, m.percent)
		}
		if idx, ok := IndexForPercentage(m.percent); !ok || idx != m.index {
			return inconsistent("percent %d does not map back to index %d", m.percent, m.index)
		}
	}
	return nil
}
