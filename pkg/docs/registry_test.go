package docs

import "testing"

func TestProtocolSetAddAndResolve(t *testing.T) {
	t.Parallel()
	set := NewProtocolSet()
	p := &Protocol{}
	set.Add("dex", p)

	got, ok := set.Resolve("dex")
	if !ok || got != p {
		t.Fatalf("expected to resolve dex to the registered protocol")
	}
}

func TestProtocolSetResolveMissing(t *testing.T) {
	t.Parallel()
	set := NewProtocolSet()
	_, ok := set.Resolve("missing")
	if ok {
		t.Fatalf("expected missing protocol to resolve false")
	}
}

func TestProtocolSetAddOverwrites(t *testing.T) {
	t.Parallel()
	set := NewProtocolSet()
	first := &Protocol{}
	second := &Protocol{}
	set.Add("dex", first)
	set.Add("dex", second)

	got, ok := set.Resolve("dex")
	if !ok || got != second {
		t.Fatalf("expected second registration to win")
	}
}
