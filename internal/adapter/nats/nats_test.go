package nats

import (
	"strings"
	"testing"

	"github.com/Strob0t/SwarmForge/internal/port/messagequeue"
)

// subjectMatches implements NATS subject matching: "*" matches one token,
// ">" matches the rest of the subject.
func subjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, p := range pt {
		if p == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

func covered(subject string) bool {
	for _, p := range streamSubjects {
		if subjectMatches(p, subject) {
			return true
		}
	}
	return false
}

// Every subject published to or consumed from the stream must be covered by
// the stream config, or publishes get "no response from stream" and JetStream
// consumers never see a message.
func TestStreamSubjectsCoverStreamTraffic(t *testing.T) {
	for _, subject := range []string{
		messagequeue.SubjectTaskSubmit,
		messagequeue.SubjectTaskCancel,
		messagequeue.SubjectTaskResult,
		messagequeue.SubjectAgentStatus,
		messagequeue.SubjectRunnerDone,
	} {
		if !covered(subject) {
			t.Errorf("subject %s is not covered by stream subjects %v", subject, streamSubjects)
		}
	}
}

// Runner control traffic is request-reply over core NATS; storing it in the
// stream would double-deliver every control request.
func TestStreamSubjectsExcludeRunnerControl(t *testing.T) {
	for _, subject := range []string{
		messagequeue.SubjectRunnerSpawn,
		messagequeue.SubjectRunnerStop,
		messagequeue.SubjectRunnerDispatch + ".agent-1",
		messagequeue.SubjectRunnerCancel + ".agent-1",
		messagequeue.SubjectRunnerProbe + ".agent-1",
	} {
		if covered(subject) {
			t.Errorf("control subject %s must not be covered by stream subjects %v", subject, streamSubjects)
		}
	}
}
