package form

import (
	"context"
	"errors"
	"maps"
	"time"
)

// FallbackBanner is used when a failed submission carries no server message.
const FallbackBanner = "Something went wrong. Please try again."

var (
	ErrInvalid = errors.New("form has field errors")
	ErrBusy    = errors.New("submission already in progress")
	ErrDone    = errors.New("form already completed")
)

type Fields map[string]string

type Errors map[string]string

func (e Errors) Empty() bool { return len(e) == 0 }

// Step validation must be pure: it may read fields and now, nothing else.
type Step struct {
	Name     string
	Fields   []string
	Validate func(f Fields, now time.Time) Errors
}

type Flow struct {
	Name  string
	Steps []Step
	// Sensitive fields are dropped once their step succeeds and never persisted or rendered.
	Sensitive []string
}

type State struct {
	Flow     string            `json:"flow"`
	Step     int               `json:"step"`
	StepName string            `json:"step_name"`
	Fields   Fields            `json:"fields"`
	Errors   Errors            `json:"errors"`
	Banner   string            `json:"banner,omitempty"`
	Done     bool              `json:"done"`
	Carry    map[string]string `json:"-"`
}

// Runner executes fn while holding the busy flag for key.
type Runner interface {
	Run(ctx context.Context, key string, fn func(context.Context) error) error
}

func (f *Flow) Start() *State {
	return &State{
		Flow:     f.Name,
		StepName: f.Steps[0].Name,
		Fields:   Fields{},
		Errors:   Errors{},
		Carry:    map[string]string{},
	}
}

func (f *Flow) Current(s *State) Step {
	i := s.Step
	if i < 0 {
		i = 0
	}
	if i >= len(f.Steps) {
		i = len(f.Steps) - 1
	}
	return f.Steps[i]
}

func (f *Flow) Last(s *State) bool { return s.Step >= len(f.Steps)-1 }

// Check validates the current step against a copy of the fields.
func (f *Flow) Check(s *State, now time.Time) Errors {
	step := f.Current(s)
	if step.Validate == nil {
		return Errors{}
	}
	errs := step.Validate(maps.Clone(s.Fields), now)
	if errs == nil {
		errs = Errors{}
	}
	return errs
}

// Advance moves to the next step, or marks the flow done on the last one.
// It is blocked while the current step has errors.
func (f *Flow) Advance(s *State, now time.Time) error {
	if s.Done {
		return ErrDone
	}
	if errs := f.Check(s, now); !errs.Empty() {
		s.Errors = errs
		return ErrInvalid
	}
	s.Errors = Errors{}
	s.Banner = ""
	for _, name := range f.Sensitive {
		delete(s.Fields, name)
	}
	if f.Last(s) {
		s.Done = true
		return nil
	}
	s.Step++
	s.StepName = f.Steps[s.Step].Name
	return nil
}

// Submit validates locally, runs action under the busy guard and advances on
// success. A failed action leaves the step unchanged and fills the banner.
func (f *Flow) Submit(ctx context.Context, s *State, now time.Time, guard Runner, key string, action func(context.Context) error) error {
	if s.Done {
		return ErrDone
	}
	if errs := f.Check(s, now); !errs.Empty() {
		s.Errors = errs
		return ErrInvalid
	}
	if action != nil {
		err := guard.Run(ctx, key, action)
		if errors.Is(err, ErrBusy) {
			return err
		}
		if err != nil {
			s.Banner = BannerFor(err)
			return err
		}
	}
	return f.Advance(s, now)
}

// SetField updates a value and clears any error recorded for it.
func (s *State) SetField(name, value string) {
	if s.Fields == nil {
		s.Fields = Fields{}
	}
	s.Fields[name] = value
	delete(s.Errors, name)
}

// Apply copies the current step's fields from values.
func (f *Flow) Apply(s *State, values map[string]string) {
	for _, name := range f.Current(s).Fields {
		if v, ok := values[name]; ok {
			s.SetField(name, v)
		}
	}
}

// Public is the copy safe to send to the browser.
func (f *Flow) Public(s *State) *State {
	out := *s
	out.Fields = maps.Clone(s.Fields)
	out.Errors = maps.Clone(s.Errors)
	out.Carry = nil
	for _, name := range f.Sensitive {
		delete(out.Fields, name)
	}
	return &out
}

func BannerFor(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}
	return FallbackBanner
}
