package domain

import "testing"

func TestInRange(t *testing.T) {
	cases := []struct {
		name    string
		x, a, b ID
		want    bool
	}{
		{"whole ring when a==b", 50, 100, 100, true},
		{"zero point included", 0, 100, 100, true},
		{"normal interval, inside", 60, 50, 100, true},
		{"normal interval, at b", 100, 50, 100, true},
		{"normal interval, at a excluded", 50, 50, 100, false},
		{"normal interval, outside", 10, 50, 100, false},
		{"wraparound, inside tail", 200, 100, 50, true},
		{"wraparound, inside head", 10, 100, 50, true},
		{"wraparound, at b", 50, 100, 50, true},
		{"wraparound, at a excluded", 100, 100, 50, false},
		{"wraparound, outside", 75, 100, 50, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := InRange(c.x, c.a, c.b); got != c.want {
				t.Errorf("InRange(%v,%v,%v) = %v, want %v", c.x, c.a, c.b, got, c.want)
			}
		})
	}
}

func TestDeriveNodeIDDeterministic(t *testing.T) {
	id1 := DeriveNodeID(5000, 0x7f000001)
	id2 := DeriveNodeID(5000, 0x7f000001)
	if id1 != id2 {
		t.Fatalf("DeriveNodeID is not deterministic: %v != %v", id1, id2)
	}
	id3 := DeriveNodeID(5001, 0x7f000001)
	if id1 == id3 {
		t.Fatalf("different inputs unexpectedly derived the same id")
	}
}

func TestDeriveImageIDDeterministic(t *testing.T) {
	if DeriveImageID("x.tga") != DeriveImageID("x.tga") {
		t.Fatalf("DeriveImageID is not deterministic")
	}
}
