package deliberate

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// participant is one panel member with a stable short id and a persona
// it argues from.
type participant struct {
	id      string
	persona string
}

// defaultPersonas is the panel used when configuration supplies none.
var defaultPersonas = []string{
	"pragmatic engineer focused on what can actually ship",
	"skeptic who probes weaknesses, risks, and hidden costs",
	"strategist weighing long-term consequences over quick wins",
}

// newPanel builds a panel of the given size, cycling through personas when
// the panel is larger than the persona list.
func newPanel(personas []string, size int) []participant {
	if len(personas) == 0 {
		personas = defaultPersonas
	}
	if size <= 0 {
		size = len(personas)
	}

	panel := make([]participant, size)
	for i := range panel {
		panel[i] = participant{
			id:      uuid.New().String()[:8],
			persona: personas[i%len(personas)],
		}
	}
	return panel
}

// positionPrompt builds the user prompt for one participant's contribution
// in one round.
func positionPrompt(goal, depContext, memory string, others map[string]string, round int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question under deliberation:\n%s\n", goal)

	if depContext != "" {
		fmt.Fprintf(&b, "\nConclusions and progress from prerequisite deliberations:\n%s\n", depContext)
	}
	if memory != "" {
		fmt.Fprintf(&b, "\nYour positions from earlier deliberations:\n%s\n", memory)
	}
	if len(others) > 0 {
		b.WriteString("\nCurrent positions of the other panel members:\n")
		for id, pos := range others {
			fmt.Fprintf(&b, "- [%s] %s\n", id, pos)
		}
	}

	if round == 1 {
		b.WriteString("\nState your initial position in one focused paragraph.")
	} else {
		fmt.Fprintf(&b, "\nThis is round %d. Refine your position: concede points you now agree with, defend the rest. One focused paragraph.", round)
	}
	return b.String()
}

// personaSystem builds the system prompt framing a participant's persona.
func personaSystem(persona string) string {
	return fmt.Sprintf("You are a deliberation panel member arguing as a %s. Be concrete and concise; disagree when warranted.", persona)
}
