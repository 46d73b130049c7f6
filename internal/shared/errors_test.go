package shared

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not connected", fmt.Errorf("%w: spotify", ErrNotConnected), "not_connected"},
		{"refresh failed", fmt.Errorf("%w: no refresh token", ErrRefreshFailed), "refresh_failed"},
		{"transport", fmt.Errorf("%w: status 503", ErrTransport), "transport"},
		{"partial batch", &PartialBatchError{Added: 1, Requested: 3, Err: fmt.Errorf("%w: boom", ErrTransport)}, "partial_batch"},
		{"playlist not found", ErrPlaylistNotFound, "playlist_not_found"},
		{"other", errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPartialBatchError(t *testing.T) {
	cause := fmt.Errorf("%w: timeout", ErrTransport)
	err := fmt.Errorf("add tracks: %w", &PartialBatchError{Added: 100, Requested: 250, Err: cause})

	if !errors.Is(err, ErrPartialBatch) {
		t.Error("expected errors.Is to match ErrPartialBatch")
	}
	if !errors.Is(err, ErrTransport) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}

	var pbe *PartialBatchError
	if !errors.As(err, &pbe) {
		t.Fatal("expected errors.As to find PartialBatchError")
	}
	if pbe.Added != 100 || pbe.Requested != 250 {
		t.Errorf("unexpected counts %d/%d", pbe.Added, pbe.Requested)
	}
}
