// Package marker implements the gateway's in-band marker protocol (§4.3):
// single-line directives embedded in model output that trigger side effects
// (scheduling, task mutation, skill/lesson updates, reward recording,
// language switching, project activation, WhatsApp pairing) and are then
// stripped from the text delivered to the user.
//
// No teacher file implements anything like this — goclaw's model output goes
// straight to the user after internal/agent's sanitize.go pipeline strips
// artifacts, never side-effect directives. The line-scanning strip technique
// here is grounded on that file's stripDowngradedToolCallText, which also
// removes whole marker-shaped lines from assistant text while leaving the
// rest verbatim.
package marker

import "strings"

type Name string

const (
	Schedule         Name = "SCHEDULE"
	ScheduleAction   Name = "SCHEDULE_ACTION"
	CancelTask       Name = "CANCEL_TASK"
	UpdateTask       Name = "UPDATE_TASK"
	HeartbeatOK      Name = "HEARTBEAT_OK"
	HeartbeatAdd     Name = "HEARTBEAT_ADD"
	SkillImprove     Name = "SKILL_IMPROVE"
	Reward           Name = "REWARD"
	Lesson           Name = "LESSON"
	LangSwitch       Name = "LANG_SWITCH"
	ProjectActivate  Name = "PROJECT_ACTIVATE"
	WhatsAppQR       Name = "WHATSAPP_QR"
)

// arity maps each marker to its exact required pipe-delimited field count.
// A marker with no payload (HEARTBEAT_OK, WHATSAPP_QR) has arity 0.
var arity = map[Name]int{
	Schedule:        2, // description | due_at, repeat is handled as an optional 3rd field below
	ScheduleAction:  3, // description | due_at | prompt, repeat optional as a 4th field
	CancelTask:      1,
	UpdateTask:      2, // id-prefix | field=value[,field=value...]
	HeartbeatOK:     0,
	HeartbeatAdd:    1,
	SkillImprove:    2,
	Reward:          3,
	Lesson:          2,
	LangSwitch:      1,
	ProjectActivate: 1,
	WhatsAppQR:      0,
}

// optionalArity lists arities also accepted for markers whose last field is
// optional (the repeat field on SCHEDULE/SCHEDULE_ACTION).
var optionalArity = map[Name]int{
	Schedule:       3,
	ScheduleAction: 4,
}

func validArity(n Name, fields int) bool {
	if base, ok := arity[n]; ok && fields == base {
		return true
	}
	if opt, ok := optionalArity[n]; ok && fields == opt {
		return true
	}
	return false
}

var prefixes = buildPrefixes()

func buildPrefixes() map[string]Name {
	m := make(map[string]Name, len(arity))
	for n := range arity {
		if arity[n] == 0 {
			m[string(n)] = n
		} else {
			m[string(n)+":"] = n
		}
	}
	return m
}

// Status distinguishes a successfully dispatched marker from one that parsed
// but failed to apply, or one that failed to parse at all.
type Status int

const (
	StatusOK Status = iota
	StatusParseError
	StatusDispatchError
)

// Result carries one marker's outcome along with enough context for the
// heartbeat/pipeline confirmation renderer (§4.6) and the idempotency
// warning surfaced by §4.3's similarity screening.
type Result struct {
	Marker   Name
	Status   Status
	Fields   []string
	Message  string // human-facing confirmation or error text
	Warning  string // non-fatal note, e.g. a similar pending task already exists
	Err      error
}

func (r Result) OK() bool { return r.Status == StatusOK }

// splitFields splits a marker payload on "|", trimming whitespace from each
// field. No escaping is supported (§9 Open Question, resolved): a field may
// not itself contain "|".
func splitFields(payload string) []string {
	if payload == "" {
		return nil
	}
	parts := strings.Split(payload, "|")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}
