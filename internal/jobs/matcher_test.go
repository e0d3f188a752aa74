package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/spigell/jd-validator/internal/index"
)

type stubQuerier struct {
	group  index.MatchGroup
	err    error
	calls  int
	skills []string
}

func (s *stubQuerier) Query(_ context.Context, skills []string) (index.MatchGroup, error) {
	s.calls++
	s.skills = skills
	return s.group, s.err
}

func TestMatchForwardsSkills(t *testing.T) {
	q := &stubQuerier{group: index.MatchGroup{
		{{"links": "https://example.com/python"}},
		{{"links": "https://example.com/react"}, {"links": "https://example.com/vue"}},
	}}

	got, err := NewMatcher(q, nil).Match(context.Background(), Record{Skills: []string{"Python", "React"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.calls != 1 {
		t.Fatalf("expected one query, got %d", q.calls)
	}
	if len(q.skills) != 2 || q.skills[0] != "Python" || q.skills[1] != "React" {
		t.Fatalf("unexpected skills forwarded: %v", q.skills)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(got))
	}
}

func TestMatchWithoutSkills(t *testing.T) {
	q := &stubQuerier{}

	got, err := NewMatcher(q, nil).Match(context.Background(), Record{Role: "Manager"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty group, got %v", got)
	}
	if q.calls != 0 {
		t.Fatal("index must not be queried without skills")
	}
}

func TestMatchPropagatesIndexErrors(t *testing.T) {
	q := &stubQuerier{err: errors.Join(index.ErrUnavailable, errors.New("dial tcp"))}

	_, err := NewMatcher(q, nil).Match(context.Background(), Record{Skills: []string{"Go"}})
	if !errors.Is(err, index.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
