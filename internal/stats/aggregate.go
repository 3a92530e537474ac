// Package stats computes the aggregate views the dashboard charts render.
// Everything here is a pure function of its inputs: no I/O, total on empty
// input, and malformed values coerce to zero instead of failing, so a
// chart always gets a shaped response.
package stats

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultActivityType is silently applied when no type filter is given.
const DefaultActivityType = "Ride"

// mpsToKmh converts meters/second to kilometers/hour.
const mpsToKmh = 3.6

// Activity is the normalized record the aggregator consumes.
type Activity struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               string    `json:"type"`
	Distance           float64   `json:"distance"` // meters
	MovingTime         int64     `json:"moving_time"`
	ElapsedTime        int64     `json:"elapsed_time"`
	TotalElevationGain *float64  `json:"total_elevation_gain"`
	AverageSpeed       *float64  `json:"average_speed"` // m/s
	MaxSpeed           *float64  `json:"max_speed"`
	AverageWatts       *float64  `json:"average_watts"`
	MaxWatts           *float64  `json:"max_watts"`
	StartDate          time.Time `json:"start_date"`
	StartDateLocal     time.Time `json:"start_date_local"`

	UserID   uint   `json:"userId"`
	UserName string `json:"userName"`
}

// Filters selects which slice of the loaded activities each breakdown is
// computed over.
type Filters struct {
	// ActivityType restricts the per-user and per-date breakdowns.
	// Empty means DefaultActivityType.
	ActivityType string
	// UserID of 0 means all users.
	UserID uint
}

// UserTotal is one row of the kilometers-by-user ranking.
type UserTotal struct {
	Name       string  `json:"name"`
	Kilometers float64 `json:"kilometers"`
}

// UserAverage is a per-user mean of one metric.
type UserAverage struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
}

// SeriesUser identifies one column of a per-date series. Key is the
// slugified display name used as the column key in Series.Data; two users
// whose names slugify identically collide (known unhandled edge case).
type SeriesUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Series is a dense per-user-per-date matrix: every date present in the
// qualifying set carries a cell for every user present in the input set,
// zero when that user has nothing on that date.
type Series struct {
	Data  []map[string]any `json:"data"`
	Users []SeriesUser     `json:"users"`
}

// DateValue is one point of a global per-date series.
type DateValue struct {
	Date  string  `json:"date"`
	Power float64 `json:"power"`
}

// View is the full aggregate response consumed by the chart components.
//
// The whole-period KPIs (averageSpeed, averageElevation, maxPower,
// maxDuration) are computed over ALL activity types while the breakdowns
// use the type-filtered set. The asymmetry is intentional: a KPI card
// shows "best power across everything" next to "kilometers by user for
// the selected sport". Do not unify the two sets.
type View struct {
	TotalActivities         int        `json:"totalActivities"`
	TotalActivitiesAllTypes int        `json:"totalActivitiesAllTypes"`
	AvailableActivityTypes  []string   `json:"availableActivityTypes"`
	Activities              []Activity `json:"activities"`

	KilometersByUser        []UserTotal `json:"kilometersByUser"`
	KilometersByUserAndDate Series      `json:"kilometersByUserAndDate"`

	AverageSpeedByUser            []UserAverage `json:"averageSpeedByUser"`
	AverageSpeedByUserAndDate     Series        `json:"averageSpeedByUserAndDate"`
	AverageElevationByUser        []UserAverage `json:"averageElevationByUser"`
	AverageElevationByUserAndDate Series        `json:"averageElevationByUserAndDate"`

	AveragePower       float64     `json:"averagePower"`
	AveragePowerByDate []DateValue `json:"averagePowerByDate"`
	AverageDuration    float64     `json:"averageDuration"`

	MaxSpeed         float64 `json:"maxSpeed"`
	AverageSpeed     float64 `json:"averageSpeed"`
	MaxElevation     float64 `json:"maxElevation"`
	AverageElevation float64 `json:"averageElevation"`
	MaxPower         float64 `json:"maxPower"`
	MaxDuration      float64 `json:"maxDuration"`
}

var whitespace = regexp.MustCompile(`\s+`)

// SlugifyName turns a display name into a chart column key.
func SlugifyName(name string) string {
	return strings.ToLower(whitespace.ReplaceAllString(name, "_"))
}

// Aggregate computes the full view from the loaded activities. The user
// filter narrows everything; the type filter only narrows the breakdowns,
// never the whole-period KPIs.
func Aggregate(activities []Activity, filters Filters) View {
	activityType := filters.ActivityType
	if activityType == "" {
		activityType = DefaultActivityType
	}

	all := activities
	if filters.UserID != 0 {
		all = make([]Activity, 0, len(activities))
		for _, a := range activities {
			if a.UserID == filters.UserID {
				all = append(all, a)
			}
		}
	}

	availableTypes := make([]string, 0, 4)
	seenTypes := make(map[string]bool)
	filtered := make([]Activity, 0, len(all))
	for _, a := range all {
		if a.Type != "" && !seenTypes[a.Type] {
			seenTypes[a.Type] = true
			availableTypes = append(availableTypes, a.Type)
		}
		if a.Type == activityType {
			filtered = append(filtered, a)
		}
	}

	return View{
		TotalActivities:         len(filtered),
		TotalActivitiesAllTypes: len(all),
		AvailableActivityTypes:  availableTypes,
		Activities:              filtered,

		KilometersByUser: kilometersByUser(filtered),
		KilometersByUserAndDate: userDateSeries(filtered, func(a Activity) (float64, bool) {
			return a.Distance / 1000, true
		}, false),

		AverageSpeedByUser: averageByUser(filtered, speedKmh),
		AverageSpeedByUserAndDate: userDateSeries(filtered, speedKmh, true),

		AverageElevationByUser: averageByUser(filtered, elevation),
		AverageElevationByUserAndDate: userDateSeries(filtered, elevation, true),

		AveragePower:       averageOf(filtered, watts),
		AveragePowerByDate: averageByDate(filtered, watts),
		AverageDuration:    totalDurationMean(filtered),

		MaxSpeed:         maxOf(filtered, func(a Activity) float64 { return deref(a.MaxSpeed) }),
		AverageSpeed:     averageOf(all, speedKmh),
		MaxElevation:     maxOf(filtered, func(a Activity) float64 { return deref(a.TotalElevationGain) }),
		AverageElevation: averageOf(all, elevation),
		MaxPower:         maxOf(all, powerReading),
		MaxDuration:      maxOf(all, durationReading),
	}
}

// speedKmh reports the activity's average speed in km/h, qualifying only
// when the provider reported one.
func speedKmh(a Activity) (float64, bool) {
	if a.AverageSpeed == nil || *a.AverageSpeed <= 0 {
		return 0, false
	}
	return *a.AverageSpeed * mpsToKmh, true
}

func elevation(a Activity) (float64, bool) {
	if a.TotalElevationGain == nil || *a.TotalElevationGain <= 0 {
		return 0, false
	}
	return *a.TotalElevationGain, true
}

func watts(a Activity) (float64, bool) {
	if a.AverageWatts == nil || *a.AverageWatts <= 0 {
		return 0, false
	}
	return *a.AverageWatts, true
}

// powerReading prefers max_watts and falls back to average_watts.
func powerReading(a Activity) float64 {
	if v := deref(a.MaxWatts); v > 0 {
		return v
	}
	return deref(a.AverageWatts)
}

// durationReading prefers moving time and falls back to elapsed time.
func durationReading(a Activity) float64 {
	if a.MovingTime > 0 {
		return float64(a.MovingTime)
	}
	return float64(a.ElapsedTime)
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func dateKey(a Activity) string {
	t := a.StartDateLocal
	if t.IsZero() {
		t = a.StartDate
	}
	return t.Format("2006-01-02")
}

func kilometersByUser(activities []Activity) []UserTotal {
	order := make([]uint, 0, 8)
	totals := make(map[uint]*UserTotal)

	for _, a := range activities {
		entry, ok := totals[a.UserID]
		if !ok {
			entry = &UserTotal{Name: a.UserName}
			totals[a.UserID] = entry
			order = append(order, a.UserID)
		}
		entry.Kilometers += a.Distance / 1000
	}

	out := make([]UserTotal, 0, len(order))
	for _, id := range order {
		out = append(out, *totals[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kilometers > out[j].Kilometers })
	return out
}

// averageByUser computes the per-user mean of one metric, counting only
// records where the metric qualifies. Users with no qualifying record do
// not appear.
func averageByUser(activities []Activity, metric func(Activity) (float64, bool)) []UserAverage {
	type acc struct {
		name  string
		total float64
		count int
	}
	order := make([]uint, 0, 8)
	sums := make(map[uint]*acc)

	for _, a := range activities {
		v, ok := metric(a)
		if !ok {
			continue
		}
		entry, seen := sums[a.UserID]
		if !seen {
			entry = &acc{name: a.UserName}
			sums[a.UserID] = entry
			order = append(order, a.UserID)
		}
		entry.total += v
		entry.count++
	}

	out := make([]UserAverage, 0, len(order))
	for _, id := range order {
		entry := sums[id]
		out = append(out, UserAverage{
			UserID: strconv.FormatUint(uint64(id), 10),
			Name:   entry.name,
			Value:  entry.total / float64(entry.count),
		})
	}
	return out
}

// userDateSeries builds the dense per-user-per-date matrix. Columns cover
// every user present in the input set; rows cover every date with at
// least one qualifying record. mean selects averaging over summing.
func userDateSeries(activities []Activity, metric func(Activity) (float64, bool), mean bool) Series {
	users := make([]SeriesUser, 0, 8)
	ids := make([]uint, 0, 8)
	seenUsers := make(map[uint]bool)
	for _, a := range activities {
		if seenUsers[a.UserID] {
			continue
		}
		seenUsers[a.UserID] = true
		ids = append(ids, a.UserID)
		users = append(users, SeriesUser{
			ID:   strconv.FormatUint(uint64(a.UserID), 10),
			Name: a.UserName,
			Key:  SlugifyName(a.UserName),
		})
	}

	type cell struct {
		total float64
		count int
	}
	byDate := make(map[string]map[uint]*cell)
	for _, a := range activities {
		v, ok := metric(a)
		if !ok {
			continue
		}
		key := dateKey(a)
		row, exists := byDate[key]
		if !exists {
			row = make(map[uint]*cell)
			byDate[key] = row
		}
		c, exists := row[a.UserID]
		if !exists {
			c = &cell{}
			row[a.UserID] = c
		}
		c.total += v
		c.count++
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	data := make([]map[string]any, 0, len(dates))
	for _, d := range dates {
		row := map[string]any{"date": d}
		for i, u := range users {
			value := 0.0
			if c, ok := byDate[d][ids[i]]; ok && c.count > 0 {
				if mean {
					value = c.total / float64(c.count)
				} else {
					value = c.total
				}
			}
			row[u.Key] = value
		}
		data = append(data, row)
	}

	return Series{Data: data, Users: users}
}

// averageOf is the mean of a metric over its qualifying records only, so
// records without a reading never drag the average toward zero.
func averageOf(activities []Activity, metric func(Activity) (float64, bool)) float64 {
	var total float64
	var count int
	for _, a := range activities {
		if v, ok := metric(a); ok {
			total += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// averageByDate is the global per-date mean of a metric over qualifying
// records, dates sorted ascending.
func averageByDate(activities []Activity, metric func(Activity) (float64, bool)) []DateValue {
	type acc struct {
		total float64
		count int
	}
	byDate := make(map[string]*acc)
	for _, a := range activities {
		v, ok := metric(a)
		if !ok {
			continue
		}
		key := dateKey(a)
		entry, exists := byDate[key]
		if !exists {
			entry = &acc{}
			byDate[key] = entry
		}
		entry.total += v
		entry.count++
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]DateValue, 0, len(dates))
	for _, d := range dates {
		entry := byDate[d]
		out = append(out, DateValue{Date: d, Power: entry.total / float64(entry.count)})
	}
	return out
}

// totalDurationMean divides the moving-time sum by the total record count,
// not just records with a reading. An activity with zero moving time does
// pull this one down; that matches the dashboard's historical behavior.
func totalDurationMean(activities []Activity) float64 {
	if len(activities) == 0 {
		return 0
	}
	var total float64
	for _, a := range activities {
		total += float64(a.MovingTime)
	}
	return total / float64(len(activities))
}

// maxOf is the maximum of a metric ignoring non-positive readings; zero on
// empty input.
func maxOf(activities []Activity, metric func(Activity) float64) float64 {
	var max float64
	for _, a := range activities {
		if v := metric(a); v > max {
			max = v
		}
	}
	return max
}
