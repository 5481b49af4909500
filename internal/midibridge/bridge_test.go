package midibridge

import "testing"

func TestPickPreferred(t *testing.T) {
	w := &Watcher{preferred: defaultPreferred}

	cases := []struct {
		name   string
		inputs []string
		want   string
		ok     bool
	}{
		{"preferred wins", []string{"Some Synth", "Launchpad X MIDI 2"}, "Launchpad X MIDI 2", true},
		{"pattern order decides", []string{"Launchkey Mini", "KeyLab Essential 49"}, "KeyLab Essential 49", true},
		{"case insensitive", []string{"ARTURIA KEYLAB"}, "ARTURIA KEYLAB", true},
		{"lone device accepted", []string{"Generic Controller"}, "Generic Controller", true},
		{"ambiguous without match", []string{"Synth A", "Synth B"}, "", false},
		{"nothing available", nil, "", false},
	}
	for _, c := range cases {
		got, ok := w.pickPreferred(c.inputs)
		if got != c.want || ok != c.ok {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestPortPatternTakesPriority(t *testing.T) {
	w := &Watcher{preferred: append([]string{"Generic"}, defaultPreferred...)}
	got, ok := w.pickPreferred([]string{"Launchpad X", "Generic Controller"})
	if !ok || got != "Generic Controller" {
		t.Errorf("got (%q, %v), want the user-selected pattern to win", got, ok)
	}
}

func TestContainsCI(t *testing.T) {
	if !containsCI("Midi Through Port-0", "midi through") {
		t.Error("expected case-insensitive substring match")
	}
	if containsCI("Launchpad", "KeyLab") {
		t.Error("unexpected match")
	}
}
