package stats

// Illustrative distribution shown to accounts with no recorded events yet.
// Counts are out of 100 so they read as percentages.
var (
	placeholderCountries = []Tally{{"United States", 45, 45}, {"United Kingdom", 20, 20}, {"Canada", 15, 15}, {"Germany", 12, 12}, {"France", 8, 8}}
	placeholderDevices   = []Tally{{"mobile", 65, 65}, {"desktop", 30, 30}, {"tablet", 5, 5}}
	placeholderBrowsers  = []Tally{{"Chrome", 60, 60}, {"Safari", 25, 25}, {"Firefox", 10, 10}, {"Edge", 5, 5}}
	placeholderSystems   = []Tally{{"iOS", 40, 40}, {"Android", 30, 30}, {"Windows", 20, 20}, {"macOS", 10, 10}}
	placeholderReferrers = []Tally{{"Direct", 40, 40}, {"Instagram", 25, 25}, {"Twitter", 15, 15}, {"Google", 12, 12}, {"Facebook", 8, 8}}

	// quiet overnight, building through the day, peaking in the evening
	placeholderHourly   = [24]int64{1, 1, 0, 0, 0, 1, 2, 3, 4, 5, 6, 6, 7, 6, 6, 5, 5, 6, 7, 8, 8, 7, 4, 2}
	placeholderWeekdays = [7]int64{10, 16, 15, 15, 16, 17, 11}
)

// Placeholder returns the synthetic stats used when there is nothing to
// reduce. HasRealData is false so callers can tell it apart from real data.
func Placeholder() Stats {
	return Stats{
		HasRealData:      false,
		Total:            100,
		Countries:        clone(placeholderCountries),
		Devices:          clone(placeholderDevices),
		Browsers:         clone(placeholderBrowsers),
		OperatingSystems: clone(placeholderSystems),
		Referrers:        clone(placeholderReferrers),
		Campaigns:        []Tally{},
		Hourly:           placeholderHourly,
		Weekdays:         placeholderWeekdays,
		PeakHour:         argmax(placeholderHourly[:]),
		PeakWeekday:      argmax(placeholderWeekdays[:]),
	}
}

func clone(in []Tally) []Tally {
	return append([]Tally(nil), in...)
}
