package evaluator

import "github.com/agentsched/unisched/model"

// checkHardConstraints applies every non-negotiable rule. A single failed
// rule disqualifies the candidate regardless of its score.
func checkHardConstraints(ctx Context, room RoomCandidate, day model.Day, block int, satisfaction int) bool {
	if !meetingRoomPairingOK(ctx.Subject, room) {
		return false
	}
	if !campusTransitionOK(ctx, room, day, block) {
		return false
	}
	if !perDaySubjectCapOK(ctx, day) {
		return false
	}
	if !continuousBlockCapOK(ctx, day, block) {
		return false
	}
	if ctx.PartTime == false && !idleGapOK(ctx, day, block) {
		return false
	}
	if !block9ParityOK(ctx, block) {
		return false
	}
	if !levelParityOK(ctx.Subject.Level, block, satisfaction) {
		return false
	}
	return true
}

// meetingRoomPairingOK mirrors the Quick-Reject pairing rule but with a
// looser capacity bound: a small subject may use an oversized regular
// room as long as its capacity does not exceed enrollment*4.
func meetingRoomPairingOK(subject model.Subject, room RoomCandidate) bool {
	needsMeetingRoom := subject.NeedsMeetingRoom()
	roomIsMeetingRoom := room.Capacity < model.MeetingRoomThreshold

	if needsMeetingRoom == roomIsMeetingRoom {
		return true
	}
	// mismatch: only tolerated when a small subject lands in an
	// oversized regular room, and only up to 4x its enrollment.
	if !needsMeetingRoom {
		return false
	}
	return room.Capacity <= subject.Enrollment*4
}

// campusTransitionOK allows at most one campus change per day, and
// requires a free buffer block between the two differing-campus runs.
func campusTransitionOK(ctx Context, room RoomCandidate, day model.Day, block int) bool {
	slots := ctx.Occupied[day]
	if len(slots) == 0 {
		return true
	}

	type entry struct {
		block  int
		campus string
	}
	entries := make([]entry, 0, len(slots)+1)
	for b, s := range slots {
		entries = append(entries, entry{b, s.Campus})
	}
	entries = append(entries, entry{block, room.Campus})
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].block > entries[j].block; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}

	transitions := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].campus == entries[i-1].campus {
			continue
		}
		transitions++
		if entries[i].block-entries[i-1].block < 2 {
			// adjacent blocks, no buffer between campuses
			return false
		}
	}
	return transitions <= 1
}

// perDaySubjectCapOK rejects a third block of the same subject instance
// on the same day.
func perDaySubjectCapOK(ctx Context, day model.Day) bool {
	return ctx.SubjectBlocksToday[day]+1 <= 2
}

// continuousBlockCapOK rejects a third consecutive block of the same
// subject unless the activity is WORKSHOP or LAB.
func continuousBlockCapOK(ctx Context, day model.Day, block int) bool {
	switch ctx.Subject.Activity {
	case model.ActivityWorkshop, model.ActivityLab:
		return true
	}
	slots := ctx.Occupied[day]
	run := 1
	for b := block - 1; b >= 1; b-- {
		slot, ok := slots[b]
		if !ok || slot.SubjectCode != ctx.Subject.Code {
			break
		}
		run++
	}
	for b := block + 1; b <= model.MaxBlock; b++ {
		slot, ok := slots[b]
		if !ok || slot.SubjectCode != ctx.Subject.Code {
			break
		}
		run++
	}
	return run <= 2
}

// idleGapOK bounds total idle space on the day (after adding the
// candidate) to at most one block, for full-time professors only.
func idleGapOK(ctx Context, day model.Day, block int) bool {
	blocks := dayOccupiedBlocks(ctx, day)
	blocks = append(blocks, block)
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && blocks[j-1] > blocks[j]; j-- {
			blocks[j-1], blocks[j] = blocks[j], blocks[j-1]
		}
	}
	gap := 0
	for i := 1; i < len(blocks); i++ {
		gap += blocks[i] - blocks[i-1] - 1
	}
	return gap <= 1
}

// block9ParityOK allows the last block of the day only when an odd
// number of blocks remain for this subject instance.
func block9ParityOK(ctx Context, block int) bool {
	if block != model.MaxBlock {
		return true
	}
	return ctx.BloquesPendientes%2 == 1
}

// levelParityOK allows a block outside a level's preferred half only
// when the candidate's satisfaction is high enough to justify it.
func levelParityOK(level, block, satisfaction int) bool {
	if isPreferredBlock(level, block) {
		return true
	}
	return satisfaction >= 8
}
