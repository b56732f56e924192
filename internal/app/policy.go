package app

// diagnosisThreshold is the conversation depth at which a diagnosis is
// attempted: one full user/ai round plus one more message.
const diagnosisThreshold = 3

// ShouldDiagnose reports whether the conversation is deep enough to run
// diagnosis this turn, given the number of persisted messages after the
// current user turn. Pure and stateless; the at-most-once guard lives
// in the orchestrator.
func ShouldDiagnose(messageCount int) bool {
	return messageCount >= diagnosisThreshold
}
