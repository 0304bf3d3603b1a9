package events

import "time"

// dicePromptFollowupDelay is the pause before a dice_roll's log-removal and
// prompt-clear follow-ups, so client UIs animate the primary roll first.
const dicePromptFollowupDelay = 500 * time.Millisecond

func delayedFollowups(fn func()) {
	time.Sleep(dicePromptFollowupDelay)
	fn()
}
