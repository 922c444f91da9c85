package game

import (
	"agirush.ai/internal/persistence/snapshot"
)

func amountsV1(a Amounts) snapshot.AmountsV1 {
	return snapshot.AmountsV1{Compute: a.Compute, Data: a.Data, Algorithm: a.Algorithm}
}

func amountsFromV1(a snapshot.AmountsV1) Amounts {
	return Amounts{Compute: a.Compute, Data: a.Data, Algorithm: a.Algorithm}
}

// ExportSnapshot captures the full session. The header tick is the number of
// completed ticks, which is also the next tick a replay would process.
func (e *Engine) ExportSnapshot() snapshot.SnapshotV1 {
	s := e.state
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   s.RunID,
			Tick:    s.Tick,
		},
		Tuning:        e.tu,
		PlayerName:    s.PlayerName,
		CatalogDigest: e.CatalogDigest(),

		ElapsedSeconds:      s.ElapsedSeconds,
		Intelligence:        s.Intelligence,
		PassiveIntelligence: s.PassiveIntelligence,
		TrainingBonus:       s.TrainingBonus,
		Money:               s.Money,
		PeakMoney:           s.PeakMoney,

		Resources:   amountsV1(s.Resources),
		Production:  amountsV1(s.Production),
		InvestCosts: amountsV1(s.InvestCosts),
		Levels:      snapshot.LevelsV1{Compute: s.Levels.Compute, Data: s.Levels.Data, Algorithm: s.Levels.Algorithm},
		Inputs:      copyIntMap(s.Inputs),

		Capacity: snapshot.CapacityV1{
			MaxCapacity:    s.Capacity.MaxCapacity,
			Used:           s.Capacity.Used,
			CustomerUsage:  s.Capacity.CustomerUsage,
			Reserved:       s.Capacity.Reserved,
			FreeCompute:    s.Capacity.FreeCompute,
			Demand:         s.Capacity.Demand,
			ServedFraction: s.Capacity.ServedFraction,
		},
		Training: snapshot.TrainingV1{
			Phase:           string(s.Training.Phase),
			ComputeReserved: s.Training.ComputeReserved,
			MoneyCost:       s.Training.MoneyCost,
			Duration:        s.Training.Duration,
			Remaining:       s.Training.Remaining,
			LastGain:        s.Training.LastGain,
		},
		Revenue: snapshot.RevenueV1{
			B2BEnabled:         s.Revenue.B2BEnabled,
			B2CEnabled:         s.Revenue.B2CEnabled,
			B2BUsage:           s.Revenue.B2BUsage,
			B2CSubscribers:     s.Revenue.B2CSubscribers,
			B2BRate:            s.Revenue.B2BRate,
			B2CRate:            s.Revenue.B2CRate,
			B2BTotal:           s.Revenue.B2BTotal,
			B2CTotal:           s.Revenue.B2CTotal,
			InvestorsTotal:     s.Revenue.InvestorsTotal,
			PeakB2BUsage:       s.Revenue.PeakB2BUsage,
			PeakB2CSubscribers: s.Revenue.PeakB2CSubscribers,
			Advertising:        s.Revenue.Advertising,
			ToolImprovements:   s.Revenue.ToolImprovements,
		},
		Multipliers: snapshot.MultipliersV1{
			Production:    amountsV1(s.Multipliers.Production),
			Intelligence:  s.Multipliers.Intelligence,
			Capacity:      s.Multipliers.Capacity,
			TrainingSpeed: s.Multipliers.TrainingSpeed,
		},

		Capabilities:   sortedTrue(s.Capabilities),
		NarrativeFlags: sortedTrue(s.NarrativeFlags),

		Era:                   string(s.Era),
		AGIReached:            s.AGIReached,
		AGIReachedTick:        s.AGIReachedTick,
		TrainingRunsCompleted: s.TrainingRunsCompleted,
		AppliedCommands:       len(e.logCarry),
	}
	for _, id := range s.UnlockedOrder {
		if b := s.breakthrough(id); b != nil {
			snap.Unlocked = append(snap.Unlocked, snapshot.UnlockedV1{ID: id, Tick: b.UnlockedTick})
		}
	}
	return snap
}
