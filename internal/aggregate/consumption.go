package aggregate

import (
	"math"

	"github.com/Mouaidnasab/dair-home/internal/models"
)

// AttributeConsumption computes how much of the current home load is
// served by solar, battery, and grid, in that strict priority order.
// Battery contributes only while discharging (negative power). The
// three components are non-negative and sum to the load. Point-in-time
// only; recompute per sample when applied over a series.
func AttributeConsumption(snap models.PowerSnapshot) models.ConsumptionBreakdown {
	load := snap.LoadW
	if load < 0 {
		load = 0
	}

	solar := math.Min(snap.SolarW, load)
	remaining := load - solar

	var battery float64
	if remaining > 0 && snap.BatteryW < 0 {
		battery = math.Min(math.Abs(snap.BatteryW), remaining)
		remaining -= battery
	}
	grid := remaining

	return models.ConsumptionBreakdown{
		SolarW:     solar,
		BatteryW:   battery,
		GridW:      grid,
		SolarPct:   share(solar, load),
		BatteryPct: share(battery, load),
		GridPct:    share(grid, load),
	}
}

func share(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}
