package memory_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/petasbytes/ctxassist/internal/assistant"
	"github.com/petasbytes/ctxassist/memory"
)

func TestStore_CreateDoDelete(t *testing.T) {
	st := memory.NewStore()
	s := st.Create()
	if !strings.HasPrefix(s.ID, "sess_") {
		t.Fatalf("unexpected id: %q", s.ID)
	}

	err := st.Do(s.ID, func(s *memory.Session) error {
		s.Append(assistant.RoleUser, "hi")
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if err := st.Delete(s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := st.Do(s.ID, func(*memory.Session) error { return nil }); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
	if err := st.Delete(s.ID); !errors.Is(err, memory.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound on second delete, got %v", err)
	}
}

func TestStore_DoPropagatesError(t *testing.T) {
	st := memory.NewStore()
	s := st.Create()
	boom := errors.New("boom")
	if err := st.Do(s.ID, func(*memory.Session) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	st := memory.NewStore()
	a, b := st.Create(), st.Create()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = st.Do(a.ID, func(s *memory.Session) error {
				s.Append(assistant.RoleUser, "a")
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = st.Do(b.ID, func(s *memory.Session) error {
				s.Append(assistant.RoleUser, "b")
				return nil
			})
		}()
	}
	wg.Wait()

	check := func(id, want string) {
		_ = st.Do(id, func(s *memory.Session) error {
			msgs := s.Messages()
			if len(msgs) != 50 {
				t.Errorf("session %s: got %d messages", id, len(msgs))
			}
			for _, m := range msgs {
				if m.Content != want {
					t.Errorf("session %s: foreign message %q", id, m.Content)
				}
			}
			return nil
		})
	}
	check(a.ID, "a")
	check(b.ID, "b")

	if ids := st.IDs(); len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
}
