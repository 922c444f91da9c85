package tuning

// Defaults is the seed curve. configs/tuning.yaml mirrors these values.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		SnapshotEveryTicks: 300,

		StartingMoney: 1000,
		AGIThreshold:  1000,

		MaxLevel:        5,
		LevelCostGrowth: 1.8,
		LevelRateBonus:  0.5,

		Resources: map[string]ResourceSpec{
			"compute":   {BaseRate: 1.0, InvestCost: 10},
			"data":      {BaseRate: 1.0, InvestCost: 10},
			"algorithm": {BaseRate: 0.5, InvestCost: 10},
		},
		Inputs: []InputSpec{
			{Resource: "compute", Name: "money", BaseCost: 100, CostGrowth: 1.15, Curve: "linear", Step: 0.25},
			{Resource: "compute", Name: "electricity", BaseCost: 150, CostGrowth: 1.2, Curve: "linear", Step: 0.2},
			{Resource: "compute", Name: "hardware", BaseCost: 250, CostGrowth: 1.25, Curve: "linear", Step: 0.3},
			{Resource: "compute", Name: "regulation", BaseCost: 200, CostGrowth: 1.3, Curve: "linear", Step: 0.15},
			{Resource: "data", Name: "quality", BaseCost: 120, CostGrowth: 1.2, Curve: "log", Step: 0.6},
			{Resource: "data", Name: "quantity", BaseCost: 80, CostGrowth: 1.15, Curve: "log", Step: 0.5},
			{Resource: "data", Name: "formats", BaseCost: 150, CostGrowth: 1.25, Curve: "log", Step: 0.4},
			{Resource: "algorithm", Name: "architectures", BaseCost: 200, CostGrowth: 1.3, Curve: "linear", Step: 0.4},
		},

		Capacity: CapacitySpec{
			Base:            100,
			PerHardware:     0.25,
			PerComputeLevel: 0.2,
		},
		FreeComputeResearchRate: 0.01,

		Intelligence: IntelligenceSpec{
			Scale:         40,
			Exponent:      0.9,
			ResourceScale: 10,
			BalanceFloor:  0.5,
			Weights: map[string]float64{
				"compute":   0.35,
				"data":      0.35,
				"algorithm": 0.30,
			},
		},
		Eras: []EraSpec{
			{Era: "GNT2", Threshold: 0},
			{Era: "GNT3", Threshold: 150, InvestorGrant: 2000},
			{Era: "GNT4", Threshold: 450, InvestorGrant: 10000},
			{Era: "AGI", Threshold: 1000},
		},

		Revenue: RevenueSpec{
			B2B: StreamSpec{
				Price:                 1,
				DemandBase:            5,
				DemandPerIntelligence: 0.02,
				ComputePerUnit:        1,
				RampPerSecond:         0.2,
			},
			B2C: StreamSpec{
				Price:                 0.5,
				DemandBase:            20,
				DemandPerIntelligence: 0.02,
				ComputePerUnit:        0.5,
				RampPerSecond:         0.1,
			},
			Advertising:      MarketingSpec{BaseCost: 200, CostGrowth: 1.5, DemandBonus: 0.25},
			ToolImprovements: MarketingSpec{BaseCost: 300, CostGrowth: 1.5, DemandBonus: 0.2},
		},

		Training: TrainingSpec{
			GainPerComputeSecond: 0.02,
			AlgorithmLevelBonus:  0.25,
			Presets: []TrainingPlan{
				{Name: "small", DurationSeconds: 30, ComputeCost: 20, MoneyCost: 300},
				{Name: "medium", DurationSeconds: 60, ComputeCost: 40, MoneyCost: 1000},
				{Name: "large", DurationSeconds: 120, ComputeCost: 80, MoneyCost: 4000},
			},
		},
	}
}
