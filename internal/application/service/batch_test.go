package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]error
	block chan struct{}
}

func (r *recordingRunner) Process(ctx context.Context, id string) (*ProcessResult, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, id)
	if err := r.fail[id]; err != nil {
		return nil, err
	}
	return &ProcessResult{}, nil
}

func refs(ids ...string) []port.MessageRef {
	out := make([]port.MessageRef, len(ids))
	for i, id := range ids {
		out[i] = port.MessageRef{ID: id}
	}
	return out
}

func TestBatchRunner_SkipsSettledCases(t *testing.T) {
	cases := newFakeCaseRepo()
	cases.cases["2"] = &entity.ReimbursementCase{ID: "2", Status: entity.CaseStatusReady}
	cases.cases["3"] = &entity.ReimbursementCase{ID: "3", Status: entity.CaseStatusNeedInfo}
	cases.cases["4"] = &entity.ReimbursementCase{ID: "4", Status: entity.CaseStatusProcessed}
	cases.cases["5"] = &entity.ReimbursementCase{ID: "5", Status: entity.CaseStatusIgnored}

	runner := &recordingRunner{fail: map[string]error{
		"6": &entity.PersistenceError{CaseID: "6", Op: "save", Err: errors.New("locked")},
	}}
	mailbox := &fakeMailbox{refs: refs("1", "2", "3", "4", "5", "6")}

	b := NewBatchRunner(mailbox, cases, runner, nil, BatchConfig{MaxPerRun: 10, BatchSize: 3}, nil)
	report, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"1", "3", "6"}, runner.seen)
	assert.Equal(t, 6, report.Listed)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Errors["6"], "locked")
	assert.NotEmpty(t, report.RunID)
}

func TestBatchRunner_CapsPerRun(t *testing.T) {
	runner := &recordingRunner{}
	mailbox := &fakeMailbox{refs: refs("1", "2", "3", "4", "5")}

	b := NewBatchRunner(mailbox, newFakeCaseRepo(), runner, nil, BatchConfig{MaxPerRun: 2, BatchSize: 1}, nil)
	report, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, runner.seen)
	assert.Equal(t, 2, report.Processed)
}

func TestBatchRunner_ListError(t *testing.T) {
	mailbox := &fakeMailbox{listErr: errors.New("imap: login failed")}
	b := NewBatchRunner(mailbox, newFakeCaseRepo(), &recordingRunner{}, nil, BatchConfig{}, nil)

	_, err := b.Run(context.Background())
	assert.ErrorContains(t, err, "login failed")
}

func TestBatchRunner_RejectsOverlappingRuns(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	mailbox := &fakeMailbox{refs: refs("1")}
	b := NewBatchRunner(mailbox, newFakeCaseRepo(), runner, nil, BatchConfig{}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = b.Run(context.Background())
	}()

	require.Eventually(t, func() bool { return b.running.Load() }, time.Second, time.Millisecond)
	_, err := b.Run(context.Background())
	assert.ErrorIs(t, err, ErrBatchRunning)

	close(runner.block)
	<-done
}
