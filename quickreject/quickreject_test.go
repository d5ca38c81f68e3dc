package quickreject

import (
	"testing"

	"github.com/agentsched/unisched/model"
)

func TestAllowDifferentCampusRejected(t *testing.T) {
	f := New()
	subject := model.Subject{Code: "CS101", Campus: "K", Enrollment: 25}
	room := RoomInfo{Code: "R1", Campus: "P", Capacity: 30}
	if f.Allow(subject, room) {
		t.Fatal("expected rejection across campuses")
	}
}

func TestAllowMeetingRoomMismatchRejected(t *testing.T) {
	f := New()
	// small class needing a meeting room, offered a large regular room
	subject := model.Subject{Code: "SEM1", Campus: "K", Enrollment: 5}
	room := RoomInfo{Code: "R1", Campus: "K", Capacity: 40}
	if f.Allow(subject, room) {
		t.Fatal("expected rejection: meeting-room subject vs regular room")
	}
}

func TestAllowMeetingRoomCapacityThreshold(t *testing.T) {
	f := New()
	subject := model.Subject{Code: "SEM1", Campus: "K", Enrollment: 8} // ceil(8*0.8) = 7
	okRoom := RoomInfo{Code: "R1", Campus: "K", Capacity: 7}
	if !f.Allow(subject, okRoom) {
		t.Fatal("expected allow at capacity == ceil(enrollment*0.8)")
	}

	subject2 := model.Subject{Code: "SEM2", Campus: "K", Enrollment: 9} // ceil(9*0.8) = 8
	tooSmall := RoomInfo{Code: "R2", Campus: "K", Capacity: 7}
	if f.Allow(subject2, tooSmall) {
		t.Fatal("expected rejection below ceil(enrollment*0.8)")
	}
}

func TestAllowRegularRoomCapacity(t *testing.T) {
	f := New()
	subject := model.Subject{Code: "CS101", Campus: "K", Enrollment: 30}
	tooSmall := RoomInfo{Code: "R1", Campus: "K", Capacity: 29}
	if f.Allow(subject, tooSmall) {
		t.Fatal("expected rejection: capacity < enrollment")
	}

	bigEnough := RoomInfo{Code: "R2", Campus: "K", Capacity: 30}
	if !f.Allow(subject, bigEnough) {
		t.Fatal("expected allow: capacity == enrollment")
	}
}

func TestAllowCachesDecision(t *testing.T) {
	f := New()
	subject := model.Subject{Code: "CS101", Campus: "K", Enrollment: 30}
	room := RoomInfo{Code: "R1", Campus: "K", Capacity: 30}

	f.Allow(subject, room)
	if f.Len() != 1 {
		t.Fatalf("expected 1 cached decision, got %d", f.Len())
	}
	f.Allow(subject, room)
	if f.Len() != 1 {
		t.Fatalf("expected cache hit not to grow cache, got %d", f.Len())
	}
}

func TestCFPLimiterBurstThenThrottle(t *testing.T) {
	l := NewCFPLimiter(1, 1)
	if !l.Allow("prof-1") {
		t.Fatal("expected first CFP allowed (burst=1)")
	}
	if l.Allow("prof-1") {
		t.Fatal("expected second immediate CFP throttled")
	}
}

func TestCFPLimiterPerProfessorIndependent(t *testing.T) {
	l := NewCFPLimiter(1, 1)
	l.Allow("prof-1")
	if !l.Allow("prof-2") {
		t.Fatal("expected independent bucket per professor")
	}
}
