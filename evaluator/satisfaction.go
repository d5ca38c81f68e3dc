package evaluator

import "github.com/agentsched/unisched/model"

// Occupancy and class-size bands for the satisfaction blend.
const (
	optimalOccupancyMin = 0.75
	optimalOccupancyMax = 0.95
	minStudents         = 9
	maxStudents         = 70
)

// Sub-score weights; they sum to 1 and the blend is scaled to 1..10.
const (
	weightCapacity   = 0.25
	weightTimeSlot   = 0.20
	weightCampus     = 0.20
	weightContinuity = 0.15
	weightActivity   = 0.20
)

// computeSatisfaction produces the 1..10 satisfaction rating for one
// candidate (room, day, block). A handful of shapes short-circuit the
// weighted blend: over-occupancy always bottoms out at 1, small classes
// are rated by their meeting-room fit alone, and an oversubscribed class
// that should have been split into parallel sections rates a 2.
func computeSatisfaction(ctx Context, room RoomCandidate, day model.Day, block int) int {
	subject := ctx.Subject

	if subject.Enrollment > room.Capacity {
		return 1
	}

	if subject.Enrollment < minStudents {
		if room.Capacity < model.MeetingRoomThreshold {
			ratio := float64(subject.Enrollment) / float64(room.Capacity)
			if ratio >= 0.5 && ratio <= 0.9 {
				return 5
			}
			return 3
		}
		return 2
	}

	if subject.Enrollment > maxStudents {
		return 2
	}

	weighted := (capacityFitScore(subject.Enrollment, room.Capacity)*weightCapacity +
		timeSlotFitScore(subject.Level, block)*weightTimeSlot +
		campusFitScore(ctx, room.Campus)*weightCampus +
		continuityFitScore(ctx)*weightContinuity +
		activityFitScore(subject.Activity, block)*weightActivity) * 10

	rounded := int(weighted + 0.5)
	if rounded < 1 {
		rounded = 1
	}
	if rounded > 10 {
		rounded = 10
	}
	return rounded
}

// capacityFitScore rates room utilization: 75-95% occupancy is optimal,
// underutilization degrades smoothly, and a near-full room is workable.
func capacityFitScore(enrollment, capacity int) float64 {
	occupancy := float64(enrollment) / float64(capacity)
	switch {
	case occupancy >= optimalOccupancyMin && occupancy <= optimalOccupancyMax:
		return 1.0
	case occupancy < optimalOccupancyMin:
		return 0.7 + (occupancy/optimalOccupancyMin)*0.3
	case occupancy <= 1.0:
		return 0.8
	default:
		return 0.1
	}
}

// timeSlotFitScore rates the block against the level's time preference:
// first-year levels belong in the morning, after that odd levels prefer
// mornings and even levels afternoons.
func timeSlotFitScore(level, block int) float64 {
	if block < 1 || block > model.MaxBlock {
		return 0.0
	}

	if level <= 2 {
		if block <= 4 {
			return 1.0
		}
		return 0.6
	}

	oddLevel := level%2 == 1
	if (oddLevel && block <= 4) || (!oddLevel && block >= 5) {
		return 1.0
	}
	return 0.7
}

// activityFitScore rates the block against the activity kind: theory in
// the morning, hands-on sessions in the afternoon, tutoring and aide
// sessions anywhere.
func activityFitScore(activity model.Activity, block int) float64 {
	switch activity {
	case model.ActivityTheory:
		if block <= 4 {
			return 1.0
		}
		return 0.6
	case model.ActivityLab, model.ActivityWorkshop, model.ActivityPractice:
		if block >= 5 {
			return 1.0
		}
		return 0.7
	case model.ActivityAide, model.ActivityTutoring:
		return 1.0
	default:
		return 0.8
	}
}

// campusFitScore rates a cross-campus room more harshly once the
// professor already holds blocks elsewhere, since every additional
// transition compounds travel.
func campusFitScore(ctx Context, roomCampus string) float64 {
	if roomCampus == ctx.Subject.Campus {
		return 1.0
	}
	for _, slots := range ctx.Occupied {
		if len(slots) > 0 {
			return 0.5
		}
	}
	return 0.7
}

// continuityFitScore multiplies a penalty per idle gap in the
// professor's existing schedule; part-time professors are exempt.
func continuityFitScore(ctx Context) float64 {
	if ctx.PartTime {
		return 1.0
	}

	score := 1.0
	for day := range ctx.Occupied {
		blocks := dayOccupiedBlocks(ctx, day)
		for i := 1; i < len(blocks); i++ {
			gap := blocks[i] - blocks[i-1] - 1
			if gap > 1 {
				score *= 0.6
			} else if gap == 1 {
				score *= 0.9
			}
		}
	}
	return score
}
