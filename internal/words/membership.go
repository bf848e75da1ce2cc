// Package words tracks which words of a plan are saved or completed, and
// keeps the working pool of words still to study.
package words

import (
	"fmt"
	"strings"
	"time"

	"github.com/futurelex/lexsync/internal/reconcile"
)

// Membership is the state of one word within a plan. A word is in at most
// one set; None means it is in neither.
type Membership int

const (
	None Membership = iota
	Saved
	Completed
)

func (m Membership) String() string {
	switch m {
	case Saved:
		return "saved"
	case Completed:
		return "completed"
	default:
		return "none"
	}
}

// Mark is the stored value of a word that is saved or completed.
type Mark struct {
	Tag Membership `json:"tag"`
	At  time.Time  `json:"at"`
}

// Sets is a snapshot of a plan's word sets.
type Sets struct {
	Saved     []string
	Completed []string
}

// ValidateID checks a word id before it becomes part of a remote path.
func ValidateID(id string) error {
	if id == "" {
		return reconcile.Invalid("wordId", "is required")
	}
	if strings.ContainsAny(id, "/ ") {
		return reconcile.Invalid("wordId", "%q must not contain '/' or spaces", id)
	}
	return nil
}

// ParseMembership parses the output of Membership.String.
func ParseMembership(s string) (Membership, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return None, nil
	case "saved":
		return Saved, nil
	case "completed":
		return Completed, nil
	default:
		return None, fmt.Errorf("unknown membership %q", s)
	}
}
