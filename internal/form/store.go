package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statePrefix = "machmate:form:"
	StateTTL    = 30 * time.Minute
)

// Store keeps in-progress multi-step forms between requests.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

type record struct {
	State *State            `json:"state"`
	Carry map[string]string `json:"carry,omitempty"`
}

func stateKey(sid string, f *Flow) string { return statePrefix + sid + ":" + f.Name }

// Load returns the stored state for sid, or a fresh one.
func (s *Store) Load(ctx context.Context, sid string, f *Flow) (*State, error) {
	raw, err := s.client.Get(ctx, stateKey(sid, f)).Bytes()
	if errors.Is(err, redis.Nil) {
		return f.Start(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load form state: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil || rec.State == nil || rec.State.Flow != f.Name {
		return f.Start(), nil
	}
	st := rec.State
	if st.Fields == nil {
		st.Fields = Fields{}
	}
	if st.Errors == nil {
		st.Errors = Errors{}
	}
	st.Carry = rec.Carry
	if st.Carry == nil {
		st.Carry = map[string]string{}
	}
	if st.Step < 0 || st.Step >= len(f.Steps) {
		return f.Start(), nil
	}
	st.StepName = f.Steps[st.Step].Name
	return st, nil
}

// Save persists the state without its sensitive fields.
func (s *Store) Save(ctx context.Context, sid string, f *Flow, st *State) error {
	raw, err := json.Marshal(record{State: f.Public(st), Carry: st.Carry})
	if err != nil {
		return fmt.Errorf("encode form state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(sid, f), raw, StateTTL).Err(); err != nil {
		return fmt.Errorf("save form state: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sid string, f *Flow) error {
	if err := s.client.Del(ctx, stateKey(sid, f)).Err(); err != nil {
		return fmt.Errorf("delete form state: %w", err)
	}
	return nil
}
