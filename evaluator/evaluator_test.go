package evaluator

import (
	"testing"

	"github.com/agentsched/unisched/model"
)

func baseSubject() model.Subject {
	return model.Subject{
		Name:       "Algorithms",
		Code:       "CS301",
		Level:      3, // odd -> prefers blocks 1..4, 9
		Enrollment: 30,
		Campus:     "K",
		Activity:   model.ActivityTheory,
	}
}

func baseCtx() Context {
	return Context{
		Subject:            baseSubject(),
		PartTime:           false,
		BloquesPendientes:  4,
		Occupied:           map[model.Day]map[int]OccupiedSlot{},
		SubjectBlocksToday: map[model.Day]int{},
		RoomUsage:          map[string]int{},
	}
}

func TestEvaluateValidCandidateScoresPositiveForMatchingCampus(t *testing.T) {
	ctx := baseCtx()
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	result := Evaluate(ctx, room, model.Monday, 1)
	if !result.Valid {
		t.Fatalf("expected valid candidate, got invalid (satisfaction=%d)", result.Satisfaction)
	}
	if result.Score <= 0 {
		t.Fatalf("expected positive score for a well-matched candidate, got %d", result.Score)
	}
}

func TestEvaluateCrossCampusPenalized(t *testing.T) {
	ctx := baseCtx()
	same := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}
	cross := RoomCandidate{Code: "P101", Campus: "P", Capacity: 30}

	sameResult := Evaluate(ctx, same, model.Monday, 1)
	crossResult := Evaluate(ctx, cross, model.Monday, 1)

	if !sameResult.Valid || !crossResult.Valid {
		t.Fatalf("expected both candidates to remain hard-constraint valid")
	}
	if crossResult.Score >= sameResult.Score {
		t.Fatalf("expected cross-campus score (%d) to be lower than same-campus score (%d)", crossResult.Score, sameResult.Score)
	}
}

func TestEvaluateRejectsThirdConsecutiveBlockForNonWorkshop(t *testing.T) {
	ctx := baseCtx()
	ctx.Occupied[model.Monday] = map[int]OccupiedSlot{
		1: {SubjectCode: "CS301", Campus: "K"},
		2: {SubjectCode: "CS301", Campus: "K"},
	}
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	result := Evaluate(ctx, room, model.Monday, 3)
	if result.Valid {
		t.Fatal("expected a third consecutive THEORY block on the same day to be rejected")
	}
}

func TestEvaluateAllowsThirdConsecutiveBlockForWorkshop(t *testing.T) {
	ctx := baseCtx()
	ctx.Subject.Activity = model.ActivityWorkshop
	ctx.Occupied[model.Monday] = map[int]OccupiedSlot{
		1: {SubjectCode: "CS301", Campus: "K"},
		2: {SubjectCode: "CS301", Campus: "K"},
	}
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	result := Evaluate(ctx, room, model.Monday, 3)
	if !result.Valid {
		t.Fatal("expected WORKSHOP activity to be exempt from the continuous-block cap")
	}
}

func TestEvaluateRejectsThirdBlockOfSameSubjectPerDay(t *testing.T) {
	ctx := baseCtx()
	ctx.SubjectBlocksToday[model.Monday] = 2
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	result := Evaluate(ctx, room, model.Monday, 5)
	if result.Valid {
		t.Fatal("expected per-day subject cap of 2 to reject a third block")
	}
}

func TestEvaluateBlock9RequiresOddRemainingBlocks(t *testing.T) {
	ctx := baseCtx()
	ctx.BloquesPendientes = 2 // even: block 9 should be rejected
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	result := Evaluate(ctx, room, model.Monday, model.MaxBlock)
	if result.Valid {
		t.Fatal("expected block 9 to be rejected when an even number of blocks remain")
	}

	ctx.BloquesPendientes = 3 // odd: block 9 should be allowed
	result = Evaluate(ctx, room, model.Monday, model.MaxBlock)
	if !result.Valid {
		t.Fatal("expected block 9 to be allowed when an odd number of blocks remain")
	}
}

func TestEvaluateIdleGapRejectedForFullTimeProfessor(t *testing.T) {
	ctx := baseCtx()
	ctx.PartTime = false
	ctx.Occupied[model.Monday] = map[int]OccupiedSlot{
		1: {SubjectCode: "CS301", Campus: "K"},
	}
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	// block 4 leaves a gap of 2 idle blocks (2,3) after block 1 -> too wide
	result := Evaluate(ctx, room, model.Monday, 4)
	if result.Valid {
		t.Fatal("expected idle-gap rule to reject a 2-block gap for a full-time professor")
	}
}

func TestEvaluateMeetingRoomPairingRejectsSmallSubjectInHugeRegularRoom(t *testing.T) {
	ctx := baseCtx()
	ctx.Subject.Enrollment = 5 // needs a meeting room
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 40}

	result := Evaluate(ctx, room, model.Monday, 1)
	if result.Valid {
		t.Fatal("expected a small class offered a far-oversized regular room to be rejected")
	}
}

func TestEvaluateMeetingRoomPairingAllowsOversizeWithinBound(t *testing.T) {
	ctx := baseCtx()
	ctx.Subject.Enrollment = 30 // does not need a meeting room
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 60} // 2x enrollment, within 4x bound

	result := Evaluate(ctx, room, model.Monday, 1)
	if !result.Valid {
		t.Fatal("expected an oversized regular room within the 4x enrollment bound to be tolerated")
	}
}

func TestEvaluateOverOccupiedRoomBottomsOutSatisfaction(t *testing.T) {
	ctx := baseCtx()
	ctx.Subject.Enrollment = 40
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	result := Evaluate(ctx, room, model.Monday, 1)
	if result.Satisfaction != 1 {
		t.Fatalf("expected satisfaction=1 for over-occupancy, got %d", result.Satisfaction)
	}
}

func TestEvaluateCampusTransitionRequiresBufferBlock(t *testing.T) {
	ctx := baseCtx()
	ctx.Occupied[model.Monday] = map[int]OccupiedSlot{
		1: {SubjectCode: "OTHER", Campus: "P"},
	}
	room := RoomCandidate{Code: "K101", Campus: "K", Capacity: 30}

	// adjacent to a different-campus block: no buffer -> invalid
	result := Evaluate(ctx, room, model.Monday, 2)
	if result.Valid {
		t.Fatal("expected a campus change with no buffer block to be rejected")
	}

	// with a buffer block between the two campuses, it should be allowed
	result = Evaluate(ctx, room, model.Monday, 3)
	if !result.Valid {
		t.Fatal("expected a campus change with a buffer block to be allowed")
	}
}
