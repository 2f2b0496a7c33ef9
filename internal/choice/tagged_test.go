package choice

import "testing"

const goblinScene = `The **Iron Door** creaks open, revealing a hoard of **Goblins**.
Choice 1: Attack the Goblins with your sword.
Choice 2: Sneak past them into the shadows.`

func TestExtractTagged_BackendMarkers(t *testing.T) {
	t.Parallel()

	opts := Extract(goblinScene, StrategyTagged)
	if len(opts) != SlotCount {
		t.Fatalf("Extract returned %d options, want %d", len(opts), SlotCount)
	}

	if opts[0].Text != "Attack the Goblins with your sword." {
		t.Errorf("opts[0].Text = %q", opts[0].Text)
	}
	if opts[1].Text != "Sneak past them into the shadows." {
		t.Errorf("opts[1].Text = %q", opts[1].Text)
	}
	for i := 0; i < 2; i++ {
		if !opts[i].Enabled || opts[i].Fallback {
			t.Errorf("opts[%d] = %+v, want extracted and enabled", i, opts[i])
		}
	}

	// Remaining slots take the positional fallbacks, still selectable.
	if opts[2].Text != "Rest" || !opts[2].Fallback || !opts[2].Enabled {
		t.Errorf("opts[2] = %+v, want enabled Rest fallback", opts[2])
	}
	if opts[3].Text != "Continue" || !opts[3].Fallback || !opts[3].Enabled {
		t.Errorf("opts[3] = %+v, want enabled Continue fallback", opts[3])
	}
}

func TestExtractTagged_NumericOrder(t *testing.T) {
	t.Parallel()

	text := "Choice 2: Take the left tunnel.\nSome narration.\nChoice 1: Take the right tunnel."
	opts := Extract(text, StrategyTagged)

	if opts[0].Text != "Take the right tunnel." {
		t.Errorf("opts[0].Text = %q, want the Choice 1 text", opts[0].Text)
	}
	if opts[1].Text != "Take the left tunnel." {
		t.Errorf("opts[1].Text = %q, want the Choice 2 text", opts[1].Text)
	}
}

func TestExtractTagged_DuplicateNumbersKeepAppearanceOrder(t *testing.T) {
	t.Parallel()

	text := "Choice 1: First offer.\nChoice 1: Second offer."
	opts := Extract(text, StrategyTagged)

	if opts[0].Text != "First offer." || opts[1].Text != "Second offer." {
		t.Errorf("opts = [%q, %q], want appearance order kept", opts[0].Text, opts[1].Text)
	}
}

func TestExtractTagged_CaseAndSpacing(t *testing.T) {
	t.Parallel()

	text := "choice  3 :   Flee the chamber.\nCHOICE 1:Stand your ground."
	opts := Extract(text, StrategyTagged)

	if opts[0].Text != "Stand your ground." {
		t.Errorf("opts[0].Text = %q", opts[0].Text)
	}
	if opts[1].Text != "Flee the chamber." {
		t.Errorf("opts[1].Text = %q", opts[1].Text)
	}
}

func TestExtractTagged_MoreThanFourMarkers(t *testing.T) {
	t.Parallel()

	text := `Choice 1: One.
Choice 2: Two.
Choice 3: Three.
Choice 4: Four.
Choice 5: Five.`
	opts := Extract(text, StrategyTagged)

	want := []string{"One.", "Two.", "Three.", "Four."}
	for i, w := range want {
		if opts[i].Text != w {
			t.Errorf("opts[%d].Text = %q, want %q", i, opts[i].Text, w)
		}
		if opts[i].Fallback {
			t.Errorf("opts[%d] marked fallback, want extracted", i)
		}
	}
}

func TestExtractTagged_NoMarkersYieldsAllFallbacks(t *testing.T) {
	t.Parallel()

	opts := Extract("The corridor stretches into darkness.", StrategyTagged)

	want := []string{"Explore further", "Search area", "Rest", "Continue"}
	for i, w := range want {
		if opts[i].Text != w {
			t.Errorf("opts[%d].Text = %q, want %q", i, opts[i].Text, w)
		}
		if !opts[i].Fallback || !opts[i].Enabled {
			t.Errorf("opts[%d] = %+v, want enabled fallback", i, opts[i])
		}
	}
}
