package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation
// (future-proof for new message types).
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch {
	case subject == SubjectTaskSubmit:
		target = &TaskSubmitPayload{}
	case subject == SubjectTaskCancel:
		target = &TaskCancelPayload{}
	case subject == SubjectTaskResult:
		target = &TaskResultPayload{}
	case subject == SubjectAgentStatus:
		target = &AgentStatusPayload{}
	case subject == SubjectRunnerSpawn:
		target = &RunnerSpawnPayload{}
	case subject == SubjectRunnerStop:
		target = &RunnerStopPayload{}
	case subject == SubjectRunnerDone:
		target = &RunnerDonePayload{}
	case strings.HasPrefix(subject, SubjectRunnerDispatch+"."):
		target = &RunnerDispatchPayload{}
	case strings.HasPrefix(subject, SubjectRunnerCancel+"."):
		target = &RunnerCancelPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
