package booking

import (
	"strings"

	"github.com/warp/booking-engine/generic"
)

// =============================================================================
// CLASSIFICATION - Ignored | Command | BookingCandidate
// =============================================================================

type ClassKind string

const (
	ClassIgnored          ClassKind = "ignored"
	ClassCommand          ClassKind = "command"
	ClassBookingCandidate ClassKind = "booking"
)

// Classification is the routing decision for one event.
type Classification struct {
	Kind    ClassKind
	Command Command // set when Kind == ClassCommand
	Reason  string  // set when Kind == ClassIgnored
}

// Command is a parsed "!name arg1 arg2" invocation.
type Command struct {
	Name string // lowercased, without sigil
	Args []string
}

const (
	DefaultSigil = "!"
	unitMarker   = "unit"
)

// Classifier routes events. It has no side effects.
type Classifier struct {
	Allowed func(generic.ChatID) bool
	Sigil   string
}

func NewClassifier(allowed func(generic.ChatID) bool) *Classifier {
	return &Classifier{Allowed: allowed, Sigil: DefaultSigil}
}

func (c *Classifier) Classify(ev Event) Classification {
	body := strings.TrimSpace(ev.Body)
	if ev.ChatID == StatusBroadcastChat {
		return ignored("status broadcast")
	}
	if body == "" {
		return ignored("empty body")
	}
	if ev.IsGroup && (c.Allowed == nil || !c.Allowed(ev.ChatID)) {
		return ignored("chat not allowed")
	}

	sigil := c.Sigil
	if sigil == "" {
		sigil = DefaultSigil
	}
	if strings.HasPrefix(body, sigil) {
		fields := strings.Fields(strings.TrimPrefix(body, sigil))
		if len(fields) == 0 {
			return ignored("bare sigil")
		}
		return Classification{
			Kind:    ClassCommand,
			Command: Command{Name: strings.ToLower(fields[0]), Args: fields[1:]},
		}
	}

	if !ev.IsGroup {
		return ignored("private non-command")
	}
	if IsBookingShaped(body) {
		return Classification{Kind: ClassBookingCandidate}
	}
	return ignored("not booking-shaped")
}

// IsBookingShaped: at least two non-empty lines and the second one mentions
// the unit marker, case-insensitively.
func IsBookingShaped(body string) bool {
	lines := splitLines(body)
	return len(lines) >= 2 && strings.Contains(strings.ToLower(lines[1]), unitMarker)
}

func ignored(reason string) Classification {
	return Classification{Kind: ClassIgnored, Reason: reason}
}
