// Package bench measures how well an extraction strategy classifies a set
// of labelled transcripts.
package bench

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fyrsmithlabs/voxnotes/internal/entity"
)

// ErrInvalidCases indicates a case file could not be used.
var ErrInvalidCases = errors.New("invalid benchmark cases")

// Categories group cases in reports.
var Categories = []string{"task", "event", "shopping", "note", "complex", "edge"}

// Case is one labelled transcript.
type Case struct {
	Name       string        `toml:"name" json:"name"`
	Category   string        `toml:"category" json:"category"`
	Transcript string        `toml:"transcript" json:"transcript"`
	Expect     []entity.Type `toml:"expect" json:"expect"`
}

type caseFile struct {
	Cases []Case `toml:"case"`
}

// DefaultCases returns the built-in cases.
func DefaultCases() []Case {
	return []Case{
		{Name: "todo", Category: "task", Transcript: "I need to finish the report", Expect: []entity.Type{entity.TypeTodo}},
		{Name: "reminder", Category: "task", Transcript: "Remind me to call mom", Expect: []entity.Type{entity.TypeReminder}},
		{Name: "appointment", Category: "event", Transcript: "Dentist appointment tomorrow at 3pm", Expect: []entity.Type{entity.TypeEvent}},
		{Name: "list", Category: "shopping", Transcript: "buy milk and eggs", Expect: []entity.Type{entity.TypeShopping}},
		{Name: "store run", Category: "shopping", Transcript: "I need to go to the store and get some apples, bread and cheese", Expect: []entity.Type{entity.TypeShopping}},
		{Name: "observation", Category: "note", Transcript: "The weather is lovely today.", Expect: []entity.Type{entity.TypeNote}},
		{Name: "idea", Category: "note", Transcript: "I had an idea for a podcast about cooking", Expect: []entity.Type{entity.TypeIdea}},
		{Name: "event and errand", Category: "complex", Transcript: "Meeting at 5pm and pick up bread", Expect: []entity.Type{entity.TypeShopping, entity.TypeEvent}},
		{Name: "errand and appointment", Category: "complex", Transcript: "Buy milk and eggs. Dentist tomorrow at 3pm", Expect: []entity.Type{entity.TypeShopping, entity.TypeEvent}},
		{Name: "filler", Category: "edge", Transcript: "hmm", Expect: []entity.Type{entity.TypeNote}},
		{Name: "repeated clause", Category: "edge", Transcript: "Buy milk. buy milk.", Expect: []entity.Type{entity.TypeShopping}},
	}
}

// LoadFile reads cases from a TOML file of [[case]] tables.
func LoadFile(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cases, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Decode parses and validates TOML cases.
func Decode(r io.Reader) ([]Case, error) {
	var file caseFile
	md, err := toml.NewDecoder(r).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCases, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidCases, undecoded[0])
	}
	if len(file.Cases) == 0 {
		return nil, fmt.Errorf("%w: no cases", ErrInvalidCases)
	}
	for i := range file.Cases {
		if err := file.Cases[i].validate(); err != nil {
			return nil, fmt.Errorf("%w: case %d: %v", ErrInvalidCases, i+1, err)
		}
	}
	return file.Cases, nil
}

func (c *Case) validate() error {
	if strings.TrimSpace(c.Transcript) == "" {
		return errors.New("transcript is required")
	}
	if len(c.Expect) == 0 {
		return errors.New("expect lists no types")
	}
	for i, t := range c.Expect {
		parsed, err := entity.ParseType(string(t))
		if err != nil {
			return err
		}
		c.Expect[i] = parsed
	}
	if c.Category == "" {
		c.Category = "custom"
	}
	if c.Name == "" {
		c.Name = c.Transcript
	}
	return nil
}
