package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/puzakroman35-sys/ohmatdyt-crm-sub000/internal/domain"
)

func entry(old *domain.Status, next domain.Status) domain.StatusHistoryEntry {
	return domain.StatusHistoryEntry{OldStatus: old, NewStatus: next}
}

func st(s domain.Status) *domain.Status { return &s }

func TestReplay(t *testing.T) {
	status, err := Replay([]domain.StatusHistoryEntry{
		entry(nil, domain.StatusNew),
		entry(st(domain.StatusNew), domain.StatusInProgress),
		entry(st(domain.StatusInProgress), domain.StatusDone),
		entry(st(domain.StatusDone), domain.StatusNew),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, status)
}

func TestReplayRejectsBrokenChains(t *testing.T) {
	_, err := Replay(nil)
	assert.Error(t, err)

	_, err = Replay([]domain.StatusHistoryEntry{entry(st(domain.StatusNew), domain.StatusInProgress)})
	assert.Error(t, err)

	_, err = Replay([]domain.StatusHistoryEntry{entry(nil, domain.StatusDone)})
	assert.Error(t, err)

	_, err = Replay([]domain.StatusHistoryEntry{
		entry(nil, domain.StatusNew),
		entry(st(domain.StatusInProgress), domain.StatusDone),
	})
	assert.Error(t, err)
}
