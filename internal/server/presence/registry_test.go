package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndCount(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.Count("alice"))

	r.Register("alice", "conn-1", func(Frame) error { return nil })
	require.Equal(t, 1, r.Count("alice"))

	r.Register("alice", "conn-2", func(Frame) error { return nil })
	require.Equal(t, 2, r.Count("alice"))
}

func TestUnregisterOneDropsToZero(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", "conn-1", func(Frame) error { return nil })
	r.UnregisterOne("alice", "conn-1")
	require.Equal(t, 0, r.Count("alice"))
}

func TestKickAllSignalsEveryHandleAndEmpties(t *testing.T) {
	r := NewRegistry()
	h1 := r.Register("alice", "conn-1", func(Frame) error { return nil })
	h2 := r.Register("alice", "conn-2", func(Frame) error { return nil })

	n := r.KickAll("alice")
	require.Equal(t, 2, n)
	require.Equal(t, 0, r.Count("alice"))

	select {
	case <-h1.Kicked():
	default:
		t.Fatal("expected h1 to be kicked")
	}
	select {
	case <-h2.Kicked():
	default:
		t.Fatal("expected h2 to be kicked")
	}
}

func TestKickAllOnUnknownUserIsNoop(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.KickAll("ghost"))
}

func TestHandlesReturnsEveryConnection(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", "conn-1", func(Frame) error { return nil })
	r.Register("alice", "conn-2", func(Frame) error { return nil })

	handles := r.Handles("alice")
	require.Len(t, handles, 2)
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := string(rune('a' + i%26))
			r.Register("bob", connID, func(Frame) error { return nil })
			r.UnregisterOne("bob", connID)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 0, r.Count("bob"))
}
