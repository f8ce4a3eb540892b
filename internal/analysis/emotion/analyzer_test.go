package emotion

import "testing"

func TestDetectSad(t *testing.T) {
	decision := Detect("I feel so lonely and sad since she left")
	if decision.Emotion != Sad {
		t.Fatalf("expected sad emotion, got %s", decision.Emotion)
	}
	if decision.Scale < 1 || decision.Scale > 5 {
		t.Fatalf("emotion scale out of range: %f", decision.Scale)
	}
}

func TestDetectExcitedBoostedByExclamations(t *testing.T) {
	decision := Detect("We did it!!! I can't wait to tell everyone")
	if decision.Emotion != Excited {
		t.Fatalf("expected excited emotion, got %s", decision.Emotion)
	}
	if decision.Scale < 3 {
		t.Fatalf("expected boosted scale for excitement, got %f", decision.Scale)
	}
}

func TestDetectAnxious(t *testing.T) {
	decision := Detect("I'm really nervous about the interview tomorrow")
	if decision.Emotion != Anxious {
		t.Fatalf("expected anxious emotion, got %s", decision.Emotion)
	}
}

func TestDetectChinese(t *testing.T) {
	decision := Detect("我今天很难过")
	if decision.Emotion != Sad {
		t.Fatalf("expected sad emotion, got %s", decision.Emotion)
	}
}

func TestDetectNeutralWithoutCues(t *testing.T) {
	decision := Detect("The meeting moved to room four")
	if decision.Emotion != Neutral || decision.Score != 0 {
		t.Fatalf("expected neutral, got %+v", decision)
	}
}

func TestParse(t *testing.T) {
	if label, ok := Parse("  HAPPY "); !ok || label != Happy {
		t.Fatalf("expected happy, got %q %v", label, ok)
	}
	if _, ok := Parse("magnetic"); ok {
		t.Fatal("unknown label must not parse")
	}
}
