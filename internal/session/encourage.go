package session

import "example.com/rehabcoach/internal/catalog"

// Phrase pools surfaced on progression results. Selection cycles by the
// user's position in the session rather than randomly so responses are
// deterministic under test while still rotating for the user.

var generalEncouragements = []string{
	"You're doing an awesome job! Every small step counts toward your recovery.",
	"Great work! Consistency is key to rehabilitation success.",
	"You should be proud of yourself. Your dedication to recovery is inspiring.",
	"Keep up the great work! Your efforts today will pay off tomorrow.",
	"Excellent job! Remember that progress in rehabilitation is often gradual but meaningful.",
	"You're making progress! Each session brings you closer to your recovery goals.",
}

var typedEncouragements = map[catalog.Type][]string{
	catalog.TypePhysical: {
		"Your physical progress is impressive! Keep building that strength.",
		"Great job with your movements! Physical therapy is all about consistency.",
		"Your body is getting stronger with each exercise. Keep it up!",
		"Excellent physical work! These exercises are helping rebuild important connections.",
		"Your coordination is improving! These physical exercises make a real difference.",
	},
	catalog.TypeSpeech: {
		"Your speech practice is paying off! Communication is such an important skill.",
		"Great articulation! Speech therapy takes patience, and you're showing plenty of it.",
		"Your speech exercises are strengthening important muscles. Well done!",
		"Excellent pronunciation! These speech exercises are making a difference.",
		"Your communication skills are improving with each session. Keep practicing!",
	},
	catalog.TypeCognitive: {
		"Your brain is building new connections with each cognitive exercise. Great work!",
		"Excellent mental workout! Cognitive exercises are key to recovery.",
		"Your problem-solving skills are improving! These cognitive challenges help rebuild pathways.",
		"Great job with that mental exercise! Your focus and attention are getting stronger.",
		"Your cognitive abilities are strengthening with practice. Keep up the good work!",
	},
}

var easierEncouragements = []string{
	"I've adjusted the difficulty to help you build confidence. You're doing great!",
	"These exercises should feel more manageable now. It's important to find the right level.",
	"I've made the exercises a bit easier so you can focus on proper technique.",
	"Sometimes taking a step back helps us move forward more effectively. You're doing well!",
}

var harderEncouragements = []string{
	"I've increased the challenge to help you progress. You're ready for this!",
	"These more challenging exercises will help you continue to improve. You can do it!",
	"You're ready for the next level! These exercises will help you build on your progress.",
	"Challenging yourself is how we grow stronger. You've shown you're ready for more!",
}

var congratulations = []string{
	"Great progress! I've increased the difficulty level for your next session.",
	"You're doing so well that I've made your exercises a bit more challenging.",
	"Excellent work! I've adjusted your difficulty level upward for more challenge.",
	"You've mastered this level! I've increased the difficulty for your next session.",
}

var sessionIntros = map[catalog.Type]string{
	catalog.TypePhysical:  "Starting your physical therapy session. Make sure you're in a comfortable position with enough space to move safely.",
	catalog.TypeSpeech:    "Starting your speech therapy session. Find a quiet place where you can speak comfortably without distractions.",
	catalog.TypeCognitive: "Starting your cognitive exercise session. Find a quiet place where you can focus without distractions.",
}

func pick(pool []string, n int) string {
	if len(pool) == 0 {
		return ""
	}
	if n < 0 {
		n = 0
	}
	return pool[n%len(pool)]
}

// encouragementFor rotates through the discipline pool keyed by how many
// exercises have been resolved so far.
func encouragementFor(t catalog.Type, resolved int) string {
	if pool, ok := typedEncouragements[t]; ok {
		return pick(pool, resolved-1)
	}
	return pick(generalEncouragements, resolved-1)
}

func adjustmentEncouragement(madeEasier bool, n int) string {
	if madeEasier {
		return pick(easierEncouragements, n)
	}
	return pick(harderEncouragements, n)
}

func congratulationFor(n int) string {
	return pick(congratulations, n)
}

func introFor(t catalog.Type) string {
	return sessionIntros[t]
}
