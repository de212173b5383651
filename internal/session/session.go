// Package session names orchestration sessions ("pods") and carries the
// per-iteration execution context handed to logging and stats helpers.
package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Execution identifies one loop iteration of one pod. It is created by the
// orchestrator at the start of each iteration and passed explicitly to
// every helper that needs to know where it is.
type Execution struct {
	Pod       string
	Instance  string // full loop instance name, see InstanceName
	Iteration int
	SessionID string
}

// Valid reports whether the execution has been initialized.
func (e Execution) Valid() bool {
	return e.Pod != ""
}

// String renders the execution the way agents are told about it.
func (e Execution) String() string {
	return fmt.Sprintf("%s / Loop %d", e.Pod, e.Iteration)
}

// NewSessionID returns a random identifier for one process run.
func NewSessionID() string {
	return uuid.NewString()
}

var adjectives = [...]string{
	"red", "blue", "green", "purple", "orange", "yellow", "silver", "golden",
	"crimson", "azure", "emerald", "violet", "amber", "ivory", "bronze", "copper",
	"swift", "calm", "bold", "wise", "keen", "bright", "quick", "steady",
	"noble", "brave", "gentle", "fierce", "proud", "silent", "clever", "nimble",
	"cosmic", "lunar", "solar", "stellar", "crystal", "mystic", "arctic", "tropic",
	"misty", "frozen", "blazing", "radiant", "shadow", "thunder", "starlit", "ancient",
	"vivid", "serene", "mighty", "agile", "lofty", "daring", "loyal", "gallant",
	"gleaming", "glowing", "shining", "dusk", "dawn", "twilight", "velvet", "marble",
}

var animals = [...]string{
	"giraffe", "zebra", "falcon", "otter", "panda", "koala", "eagle", "dolphin",
	"tiger", "wolf", "bear", "hawk", "owl", "fox", "lynx", "raven",
	"leopard", "cheetah", "jaguar", "panther", "gazelle", "antelope", "bison", "mustang",
	"phoenix", "dragon", "griffin", "unicorn", "pegasus", "sphinx", "hydra", "kraken",
	"chimera", "basilisk", "wyvern", "manticore", "cerberus", "hippogriff", "thunderbird", "leviathan",
	"shark", "whale", "seal", "penguin", "pelican", "heron", "condor", "albatross",
	"stingray", "orca", "narwhal", "walrus", "osprey", "harrier", "kestrel", "merlin",
	"badger", "mongoose", "wolverine", "marten", "viper", "cobra", "python", "iguana",
}

// NewPodName derives an adjective-animal name from the unix second of now.
// The same second always yields the same name.
func NewPodName(now time.Time) string {
	ts := now.Unix()
	if ts < 0 {
		ts = -ts
	}
	adj := adjectives[ts%int64(len(adjectives))]
	animal := animals[(ts/int64(len(adjectives)))%int64(len(animals))]
	return adj + "-" + animal
}

// InstanceName returns "YYYYMMDD-HHMMSS-<pod>" for a loop of pod started
// at now.
func InstanceName(pod string, now time.Time) string {
	return now.UTC().Format("20060102-150405") + "-" + pod
}

var dateRe = regexp.MustCompile(`^\d{8}$`)

// DisplayName extracts the adjective-animal part of a loop instance name.
//
//	"20250125-143052-calm-pegasus" -> "calm-pegasus"
//	"calm-pegasus-20250125-143052" -> "calm-pegasus"
//	"red-giraffe-1706223456"       -> "red-giraffe"
func DisplayName(full string) string {
	parts := strings.Split(full, "-")
	if len(parts) >= 4 && dateRe.MatchString(parts[0]) {
		return parts[2] + "-" + parts[3]
	}
	if len(parts) >= 3 {
		return parts[0] + "-" + parts[1]
	}
	return full
}
