package download

import "testing"

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusWaiting:     false,
		StatusDownloading: false,
		StatusPaused:      false,
		StatusCompleted:   true,
		StatusFailed:      true,
		StatusCancelled:   true,
	}
	for s, want := range terminal {
		if got := s.Terminal(); got != want {
			t.Errorf("Terminal(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusWaiting, StatusDownloading},
		{StatusDownloading, StatusPaused},
		{StatusPaused, StatusDownloading},
		{StatusDownloading, StatusCompleted},
		{StatusDownloading, StatusFailed},
		{StatusFailed, StatusDownloading},
		{StatusWaiting, StatusCancelled},
		{StatusDownloading, StatusCancelled},
		{StatusPaused, StatusCancelled},
		{StatusFailed, StatusCancelled},
	}
	for _, tc := range allowed {
		if !canTransition(tc.from, tc.to) {
			t.Errorf("canTransition(%q, %q) = false, want true", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusWaiting, StatusPaused},
		{StatusWaiting, StatusCompleted},
		{StatusPaused, StatusCompleted},
		{StatusPaused, StatusFailed},
		{StatusCompleted, StatusDownloading},
		{StatusCompleted, StatusCancelled},
		{StatusFailed, StatusCompleted},
		{StatusCancelled, StatusDownloading},
		{StatusCancelled, StatusCancelled},
		{StatusDownloading, StatusWaiting},
	}
	for _, tc := range denied {
		if canTransition(tc.from, tc.to) {
			t.Errorf("canTransition(%q, %q) = true, want false", tc.from, tc.to)
		}
	}
}
