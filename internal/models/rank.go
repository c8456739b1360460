package models

type Rank string

const (
	RankStarter  Rank = "Starter"
	RankBronze   Rank = "Bronze"
	RankSilver   Rank = "Silver"
	RankGold     Rank = "Gold"
	RankPlatinum Rank = "Platinum"
	RankDiamond  Rank = "Diamond"
)

const secondsPerDay = 86400

var rankThresholds = []struct {
	score float64
	rank  Rank
}{
	{100, RankDiamond},
	{50, RankPlatinum},
	{20, RankGold},
	{10, RankSilver},
	{5, RankBronze},
}

// RankScore weighs uploaded gigabytes against seeded days.
func RankScore(stats SeedingStats) float64 {
	gb := float64(stats.TotalBytesUploaded) / BytesPerGB
	days := float64(stats.TotalSeedingTimeSeconds) / secondsPerDay
	return 0.7*gb + 0.3*days
}

// ClassifyRank derives the rank label. It is computed on every read and never stored.
func ClassifyRank(stats SeedingStats) Rank {
	score := RankScore(stats)
	for _, t := range rankThresholds {
		if score > t.score {
			return t.rank
		}
	}
	return RankStarter
}
