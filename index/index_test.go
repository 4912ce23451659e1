package index

import "testing"

func TestDollarRebind(t *testing.T) {
	const (
		q    = `UPDATE blob_index SET tag = ? WHERE id = ?`
		want = `UPDATE blob_index SET tag = $1 WHERE id = $2`
	)
	if got := DollarRebind(q); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestDescPool(t *testing.T) {
	p := newDescPool(0)
	d := p.reserve()
	if d.ID != 1 {
		t.Errorf("got id %d, want 1", d.ID)
	}
	p.advance(10)
	if d = p.reserve(); d.ID != 11 {
		t.Errorf("got id %d after advancing to 10, want 11", d.ID)
	}
	p.advance(3)
	if d = p.reserve(); d.ID != 12 {
		t.Errorf("advancing backward changed the counter: got id %d, want 12", d.ID)
	}
	p.reset()
	if d = p.reserve(); d.ID != 1 {
		t.Errorf("got id %d after reset, want 1", d.ID)
	}
}

func TestParseState(t *testing.T) {
	for _, st := range []State{Reserved, InAir, Committed} {
		got, err := ParseState(st.String())
		if err != nil {
			t.Fatal(err)
		}
		if got != st {
			t.Errorf("got %s, want %s", got, st)
		}
	}
	if _, err := ParseState("deleted"); err == nil {
		t.Error("got no error parsing unknown state")
	}
}
