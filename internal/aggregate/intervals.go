package aggregate

import (
	"math"

	"github.com/Mouaidnasab/dair-home/internal/models"
)

// ExtractGridIntervals scans a chronologically sorted series and
// returns the spans during which grid draw was strictly positive,
// plus the total hours drawn. Single linear left-to-right pass.
//
// An interval opens at the first point with gridPower > 0 and its end
// advances with every further positive point. The first non-positive
// point closes it. Intervals that round to zero minutes (single-point
// blips) are discarded. A series ending while drawing still emits the
// open interval under the same rule.
func ExtractGridIntervals(points []models.TimeSeriesPoint) models.OutageReport {
	report := models.OutageReport{Intervals: []models.ElectricityInterval{}}

	var open *models.ElectricityInterval
	for _, point := range points {
		if point.GridPower > 0 {
			if open == nil {
				open = &models.ElectricityInterval{
					StartTime: point.Timestamp,
					EndTime:   point.Timestamp,
				}
			} else {
				open.EndTime = point.Timestamp
			}
			continue
		}
		if open != nil {
			closeInterval(&report, open)
			open = nil
		}
	}

	// Flush an interval still open at end of series.
	if open != nil {
		closeInterval(&report, open)
	}
	return report
}

func closeInterval(report *models.OutageReport, iv *models.ElectricityInterval) {
	minutes := int(math.Round(iv.EndTime.Sub(iv.StartTime).Minutes()))
	if minutes <= 0 {
		return
	}
	iv.Duration = minutes
	report.Intervals = append(report.Intervals, *iv)
	report.TotalHours += float64(minutes) / 60
}
