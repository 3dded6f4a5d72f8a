package trial

import "time"

// Source identifies the application variant a trial was recorded in.
type Source string

const (
	SourceWebkit Source = "webkit"
	SourceONNX   Source = "onnx"
)

// Sources lists every accepted source in comparison order.
var Sources = []Source{SourceWebkit, SourceONNX}

// Valid reports whether s is an accepted source.
func (s Source) Valid() bool {
	for _, known := range Sources {
		if s == known {
			return true
		}
	}
	return false
}

// Command is the user action a trial measured.
type Command string

// CommandUnknown is stored when the client does not name a command.
const CommandUnknown Command = "unknown"

// Commands is the fixed command vocabulary.
var Commands = []Command{
	"protan", "tritan", "deu", "disable", "settings", "games", "about",
	"ghost", "night", "yellow", "red", "neon", "classic", "bubble", "three",
	"four", "five", "undo", CommandUnknown,
}

// Valid reports whether c belongs to the command vocabulary.
func (c Command) Valid() bool {
	for _, known := range Commands {
		if c == known {
			return true
		}
	}
	return false
}

// Trial is one recorded interaction measurement.
type Trial struct {
	ID           string    `json:"_id" db:"id"`
	Person       string    `json:"person" db:"person" validate:"required"`
	Source       Source    `json:"source" db:"source" validate:"required,trial_source"`
	Command      Command   `json:"command" db:"command" validate:"required,trial_command"`
	ResponseTime float64   `json:"responseTime" db:"response_time" validate:"finite"`
	Accuracy     float64   `json:"accuracy" db:"accuracy" validate:"finite"`
	ErrorRate    float64   `json:"errorRate" db:"error_rate" validate:"finite"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
}

// Sort selects the ordering of a trial listing.
type Sort int

const (
	// SortTimestampDesc lists newest trials first.
	SortTimestampDesc Sort = iota
	// SortResponseTimeAsc lists fastest trials first.
	SortResponseTimeAsc
)

// Filter narrows a listing. Nil fields match everything.
type Filter struct {
	Person *string
	Source *Source
}

// Matches reports whether t passes the filter.
func (f Filter) Matches(t Trial) bool {
	if f.Person != nil && t.Person != *f.Person {
		return false
	}
	if f.Source != nil && t.Source != *f.Source {
		return false
	}
	return true
}

// Query describes a filtered, sorted and paginated listing. A zero Limit
// means no limit.
type Query struct {
	Filter Filter
	Sort   Sort
	Skip   int
	Limit  int
}

// CommandCount is one group of the command distribution. An empty Command
// means the stored command was null.
type CommandCount struct {
	Command string `json:"command" db:"command"`
	Count   int    `json:"count" db:"count"`
}
