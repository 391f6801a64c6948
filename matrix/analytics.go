package matrix

import (
	"math"
	"sort"
	"strconv"

	"tessera/domain"
)

// PieRadius is the radius of the donut chart the segments are laid out on.
const PieRadius = 40

// PieCircumference is the full arc length segments are scaled to.
var PieCircumference = 2 * math.Pi * PieRadius

// TaskHours is the number of cells assigned to a task.
type TaskHours struct {
	Task    domain.Task `json:"task"`
	Hours   int         `json:"hours"`
	Percent int         `json:"percent"`
}

// PieSegment is one arc of the distribution chart.
type PieSegment struct {
	Task       domain.Task `json:"task"`
	Hours      int         `json:"hours"`
	Percentage float64     `json:"percentage"`
	DashArray  float64     `json:"dashArray"`
	DashOffset float64     `json:"dashOffset"`
}

// WeekBucket is the number of assigned cells in one week of the year.
type WeekBucket struct {
	Week  string `json:"week"`
	Hours int    `json:"hours"`
}

// Projection bundles every view derived from a cell map and registry.
type Projection struct {
	TimeDistribution map[string]int `json:"timeDistribution"`
	Breakdown        []TaskHours    `json:"breakdown"`
	TotalHours       int            `json:"totalHours"`
	PieChartSegments []PieSegment   `json:"pieChartSegments"`
	WeeklyData       []WeekBucket   `json:"weeklyData"`
	DaysActive       int            `json:"daysActive"`
}

// Project computes all analytics for cells against tasks. Cells referencing
// tasks not in the list are left out of every per-task figure.
func Project(cells CellMap, tasks []domain.Task, sortSegments bool) Projection {
	dist := TimeDistribution(cells, tasks)
	total := TotalHours(dist)

	byTask := make(map[string]int, len(dist))
	for _, d := range dist {
		byTask[d.Task.ID] = d.Hours
	}

	breakdown := make([]TaskHours, len(dist))
	copy(breakdown, dist)
	for i := range breakdown {
		breakdown[i].Percent = RoundedPercent(breakdown[i].Hours, total)
	}
	sort.SliceStable(breakdown, func(i, j int) bool {
		return breakdown[i].Hours > breakdown[j].Hours
	})

	return Projection{
		TimeDistribution: byTask,
		Breakdown:        breakdown,
		TotalHours:       total,
		PieChartSegments: PieSegments(dist, sortSegments),
		WeeklyData:       WeeklyBuckets(cells),
		DaysActive:       DaysActive(cells),
	}
}

// TimeDistribution counts cells per task in registry order. Tasks with no
// cells are kept with a zero count.
func TimeDistribution(cells CellMap, tasks []domain.Task) []TaskHours {
	counts := make(map[string]int, len(tasks))
	for _, taskID := range cells {
		counts[taskID]++
	}
	out := make([]TaskHours, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskHours{Task: t, Hours: counts[t.ID]})
	}
	return out
}

// TotalHours sums a distribution.
func TotalHours(dist []TaskHours) int {
	total := 0
	for _, d := range dist {
		total += d.Hours
	}
	return total
}

// PieSegments lays out non-empty distribution entries around the chart. Each
// segment's offset is the negated sum of the arcs before it.
func PieSegments(dist []TaskHours, sortDesc bool) []PieSegment {
	total := TotalHours(dist)
	if total == 0 {
		return []PieSegment{}
	}
	ordered := make([]TaskHours, 0, len(dist))
	for _, d := range dist {
		if d.Hours > 0 {
			ordered = append(ordered, d)
		}
	}
	if sortDesc {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Hours > ordered[j].Hours
		})
	}

	segments := make([]PieSegment, 0, len(ordered))
	offset := 0.0
	for _, d := range ordered {
		arc := float64(d.Hours) / float64(total) * PieCircumference
		segments = append(segments, PieSegment{
			Task:       d.Task,
			Hours:      d.Hours,
			Percentage: Percent(d.Hours, total),
			DashArray:  arc,
			DashOffset: -offset,
		})
		offset += arc
	}
	return segments
}

// WeeklyBuckets counts cells into 52 weeks of seven days. Days past the last
// bucket are dropped.
func WeeklyBuckets(cells CellMap) []WeekBucket {
	buckets := make([]WeekBucket, WeeksPerYear)
	for i := range buckets {
		buckets[i].Week = "W" + strconv.Itoa(i+1)
	}
	for k := range cells {
		if w := k.Week(); w >= 0 && w < WeeksPerYear {
			buckets[w].Hours++
		}
	}
	return buckets
}

// DaysActive counts distinct days with at least one assigned cell.
func DaysActive(cells CellMap) int {
	days := make(map[int]struct{})
	for k := range cells {
		days[k.Day] = struct{}{}
	}
	return len(days)
}

// Percent returns hours as a percentage of total, or zero when total is zero.
func Percent(hours, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(hours) / float64(total) * 100
}

// ShareOf returns taskID's hours as a percentage of the distribution total.
// Unknown tasks and empty distributions give zero.
func ShareOf(dist []TaskHours, taskID string) float64 {
	for _, d := range dist {
		if d.Task.ID == taskID {
			return Percent(d.Hours, TotalHours(dist))
		}
	}
	return 0
}

// RoundedPercent is Percent rounded to the nearest integer.
func RoundedPercent(hours, total int) int {
	return int(math.Round(Percent(hours, total)))
}
