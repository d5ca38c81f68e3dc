package evaluator

import "github.com/agentsched/unisched/model"

// computeScore produces the full weighted integer score for a candidate
// already confirmed valid by checkHardConstraints. Each term is an
// independent adjustment; there is no normalization, so the final
// number is only meaningful relative to other candidates in the same
// negotiation round.
func computeScore(ctx Context, room RoomCandidate, day model.Day, block int, satisfaction int) int {
	subject := ctx.Subject
	score := 0

	if subject.Campus == room.Campus {
		score += 10000
	} else {
		score -= 10000
	}

	if isPreferredBlock(subject.Level, block) {
		score += 3000
	}

	blocksToday := dayOccupiedBlocks(ctx, day)
	dayAlreadyUsed := len(blocksToday) > 0

	if !ctx.PartTime {
		if gap, ok := nearestGap(blocksToday, block); ok {
			if gap <= 2 {
				score += 5000
			} else {
				score -= 8000
			}
		}
	}

	score += satisfaction * 10

	diff := room.Capacity - subject.Enrollment
	absDiff := diff
	if absDiff < 0 {
		absDiff = -absDiff
	}
	score -= 100 * absDiff

	roomIsMeetingRoom := room.Capacity < model.MeetingRoomThreshold
	if subject.NeedsMeetingRoom() {
		score += 15000
		if absDiff <= 2 {
			score += 5000
		}
		if roomIsMeetingRoom == false && diff > 0 {
			// small class placed in an oversized regular room
			score -= 500 * diff
		}
	}

	blocksUsedToday := ctx.SubjectBlocksToday[day]
	if dayAlreadyUsed {
		score -= 6000 * blocksUsedToday
	} else {
		score += 8000
	}

	if room.Code == ctx.MostUsedRoom && ctx.MostUsedRoom != "" {
		score += 7000
	}

	// Coarse campus check by room-code prefix: a room whose code does
	// not start with the subject's campus letter is penalized, and each
	// neighboring block already held on a different campus compounds it.
	if len(room.Code) > 0 && len(subject.Campus) > 0 && room.Code[0] != subject.Campus[0] {
		score -= 10000
		for b, slot := range ctx.Occupied[day] {
			d := b - block
			if d < 0 {
				d = -d
			}
			if d == 1 && slot.Campus != subject.Campus {
				score -= 8000
			}
		}
	}

	score -= 1500 * ctx.RoomUsage[room.Code]

	if blocksUsedToday >= 2 {
		score -= 6000
	}

	return score
}
