package models

import "time"

// Plant labels used by the vendor API. Home identifies the combined
// series produced by the aggregator, it never appears upstream.
const (
	LabelGroundFloor = "Ground_Floor"
	LabelFirstFloor  = "First_Floor"
	LabelHome        = "Home"
)

// RawRow is one telemetry row exactly as the vendor returns it: a flat
// mapping whose values may be strings, numbers, or null. No schema is
// enforced by the source; sanitize immediately on ingestion.
type RawRow map[string]interface{}

// EnergyRecord is one normalized observation for one inverter at one
// instant. All numeric fields are finite; absent or unparseable inputs
// normalize to zero.
type EnergyRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	PlantID    string    `json:"plantId"`
	PlantLabel string    `json:"plantLabel"`

	// PV generation
	PVTotalPower float64 `json:"pvTotalPower"` // W, instant
	RatedPower   float64 `json:"ratedPower"`   // kWp, array size
	TodayPV      float64 `json:"todayPv"`      // kWh
	MonthPV      float64 `json:"monthPv"`      // kWh
	YearPV       float64 `json:"yearPv"`       // kWh
	AccPV        float64 `json:"accPv"`        // kWh, lifetime
	TodayIncome  float64 `json:"todayIncome"`
	MonthIncome  float64 `json:"monthIncome"`
	YearIncome   float64 `json:"yearIncome"`
	Currency     string  `json:"currency"`

	// Battery. SoC is a shared property of the home battery even though
	// the vendor reports it per inverter.
	BatterySoc   float64 `json:"batterySoc"`   // %
	BatteryPower float64 `json:"batteryPower"` // W, +charging / -discharging

	// Load and grid
	LoadPower         float64 `json:"loadPower"`         // W, inverter AC output
	MeasuredLoadPower float64 `json:"measuredLoadPower"` // W, CT-measured, falls back to LoadPower
	GridPower         float64 `json:"gridPower"`         // W, +import / -export
	GenPower          float64 `json:"genPower"`          // W, generator input
	MeterPower        float64 `json:"meterPower"`        // W, at the meter
	MicroInvPower     float64 `json:"microInvPower"`     // W, micro-inverters

	// Device and location metadata
	DeviceSN         string  `json:"deviceSn"`
	DeviceModel      string  `json:"deviceModel"`
	CountryName      string  `json:"countryName"`
	CityName         string  `json:"cityName"`
	Status           string  `json:"status"` // "N" = normal
	InstallDate      string  `json:"installDate"`
	TimeZone         string  `json:"timeZone"`
	ElectricityPrice float64 `json:"electricityPrice"`
}

// TimeSeriesPoint is one minute of the home (or per-inverter) view.
// Derived, read-only, regenerated on every poll.
type TimeSeriesPoint struct {
	Timestamp    time.Time `json:"timestamp"`
	HomePVPower  float64   `json:"homePvPower"`
	LoadPower    float64   `json:"loadPower"`
	BatteryPower float64   `json:"batteryPower"`
	GridPower    float64   `json:"gridPower"`
	GenPower     float64   `json:"genPower"`
	BatterySoc   float64   `json:"batterySoc"`
}

// ElectricityInterval is a closed span of positive grid draw. Never
// mutated after creation; a fresh list is produced each pass.
type ElectricityInterval struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Duration  int       `json:"duration"` // minutes, >= 1
}

// OutageReport is the interval list for one day plus the summed hours.
type OutageReport struct {
	Intervals  []ElectricityInterval `json:"intervals"`
	TotalHours float64               `json:"totalHours"`
}

// PowerSnapshot is the instantaneous aggregate input of the consumption
// attribution. Solar and Load are non-negative, Battery and Grid signed.
type PowerSnapshot struct {
	SolarW   float64 `json:"solarW"`
	LoadW    float64 `json:"loadW"`
	BatteryW float64 `json:"batteryW"`
	GridW    float64 `json:"gridW"`
}

// ConsumptionBreakdown attributes the current home load to its sources
// in strict priority order: solar, then battery, then grid.
type ConsumptionBreakdown struct {
	SolarW     float64 `json:"solarW"`
	BatteryW   float64 `json:"batteryW"`
	GridW      float64 `json:"gridW"`
	SolarPct   float64 `json:"solarPct"`
	BatteryPct float64 `json:"batteryPct"`
	GridPct    float64 `json:"gridPct"`
}

// BatteryState classifies the battery power flow for display.
type BatteryState string

const (
	BatteryCharging    BatteryState = "charging"
	BatteryDischarging BatteryState = "discharging"
	BatteryIdle        BatteryState = "idle"
)

// InverterPanel is the latest view of a single inverter.
type InverterPanel struct {
	Label        string    `json:"label"`
	PVNowW       float64   `json:"pvNowW"`
	TodayKWh     float64   `json:"todayKWh"`
	RatedKwp     float64   `json:"ratedKwp"`
	LoadW        float64   `json:"loadW"`
	GridW        float64   `json:"gridW"`
	IncomeToday  float64   `json:"incomeToday"`
	Currency     string    `json:"currency"`
	Status       string    `json:"status"` // "normal" or "warning"
	Model        string    `json:"model"`
	SerialNumber string    `json:"serialNumber"`
	Timestamp    time.Time `json:"timestamp"`
}

// BatteryInfo is the shared battery block of the dashboard.
type BatteryInfo struct {
	Soc       float64      `json:"soc"`
	PowerW    float64      `json:"powerW"`
	State     BatteryState `json:"state"`
	Timestamp time.Time    `json:"timestamp"`
}

// Location describes where the plant is installed.
type Location struct {
	Country  string `json:"country"`
	City     string `json:"city"`
	Timezone string `json:"timezone"`
}

// Dashboard is the complete latest snapshot: both inverter panels, the
// battery, and the grid-power-on flag.
type Dashboard struct {
	GroundFloor InverterPanel `json:"groundFloor"`
	FirstFloor  InverterPanel `json:"firstFloor"`
	Battery     BatteryInfo   `json:"battery"`
	Location    Location      `json:"location"`
	Currency    string        `json:"currency"`
	GridPowerOn bool          `json:"gridPowerOn"`
	LastUpdated time.Time     `json:"lastUpdated"`
}

// TrendsSeries carries the three chart series for one day.
type TrendsSeries struct {
	Home        []TimeSeriesPoint `json:"home"`
	GroundFloor []TimeSeriesPoint `json:"groundFloor"`
	FirstFloor  []TimeSeriesPoint `json:"firstFloor"`
}
