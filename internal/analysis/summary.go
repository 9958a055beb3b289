package analysis

import "time"

// ActivitySummary is a cohort-wide activity roll-up.
type ActivitySummary struct {
	TotalActivities  int
	TotalAthletes    int
	TotalDistanceKm  float64
	TotalTimeHours   float64
	AvgDistanceKm    float64
	AvgPaceSPerKm    float64
	AvgHRCoverage    float64
	First            time.Time
	Last             time.Time
	ActivitiesByHour [24]int
}

// SummarizeActivities rolls up feature vectors started at or after since.
// A zero since includes everything.
func SummarizeActivities(features []Features, since time.Time) ActivitySummary {
	var s ActivitySummary
	athletes := make(map[string]struct{})
	var totalSeconds, paceSum float64
	var paceCount, hrCount int

	for _, f := range features {
		if !since.IsZero() && f.StartTime.Before(since) {
			continue
		}
		s.TotalActivities++
		athletes[f.AthleteID] = struct{}{}
		s.TotalDistanceKm += f.DistanceM / 1000
		totalSeconds += f.DurationS
		if f.AvgPaceSPerKm > 0 {
			paceSum += f.AvgPaceSPerKm
			paceCount++
		}
		if f.AvgHeartrate != nil {
			hrCount++
		}
		if s.First.IsZero() || f.StartTime.Before(s.First) {
			s.First = f.StartTime
		}
		if f.StartTime.After(s.Last) {
			s.Last = f.StartTime
		}
		s.ActivitiesByHour[f.HourOfDay]++
	}

	if s.TotalActivities == 0 {
		return s
	}
	s.TotalAthletes = len(athletes)
	s.TotalTimeHours = totalSeconds / 3600
	s.AvgDistanceKm = s.TotalDistanceKm / float64(s.TotalActivities)
	if paceCount > 0 {
		s.AvgPaceSPerKm = paceSum / float64(paceCount)
	}
	s.AvgHRCoverage = float64(hrCount) / float64(s.TotalActivities)
	return s
}

// DataQualityDescription returns a human-readable data quality assessment
func DataQualityDescription(score float64) string {
	switch {
	case score >= 0.95:
		return "Excellent"
	case score >= 0.85:
		return "Good"
	case score >= 0.70:
		return "Fair"
	case score >= 0.50:
		return "Poor"
	default:
		return "Very Poor"
	}
}

// DecouplingAssessment returns a human-readable decoupling assessment
func DecouplingAssessment(decoupling float64) string {
	switch {
	case decoupling < 3:
		return "Excellent aerobic base"
	case decoupling < 5:
		return "Good aerobic fitness"
	case decoupling < 8:
		return "Developing aerobic base"
	case decoupling < 12:
		return "Needs more easy miles"
	default:
		return "Aerobic system needs work"
	}
}
