package surreal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/futurelex/lexsync/internal/remote"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	path := remote.Plan("a", "p1")

	tests := []struct {
		name     string
		err      error
		rejected bool
		offline  bool
	}{
		{name: "permission", err: errors.New("There was a problem with the database: IAM error: Not enough permissions"), rejected: true},
		{name: "field validation", err: errors.New("Found 'x' for field `data`, but field validation failed"), rejected: true},
		{name: "connection", err: errors.New("websocket: close 1006 (abnormal closure)"), offline: true},
		{name: "deadline", err: fmt.Errorf("send: %w", context.DeadlineExceeded), offline: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("upsert", path, tt.err)
			assert.Equal(t, tt.rejected, remote.IsRejected(got))
			assert.Equal(t, tt.offline, remote.IsOffline(got))
			assert.Contains(t, got.Error(), string(path))
		})
	}
}
