package service

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type csvLikeExporter struct{}

func (csvLikeExporter) Export(w io.Writer, cases []*entity.ReimbursementCase) error {
	for _, c := range cases {
		if _, err := io.WriteString(w, c.ID+";"); err != nil {
			return err
		}
	}
	return nil
}

func (csvLikeExporter) ContentType() string { return "text/plain" }

func newAdmin(cases *fakeCaseRepo) (*CaseAdmin, *fakeAttachmentRepo, *fakeNotificationRepo) {
	atts := newFakeAttachmentRepo()
	notes := &fakeNotificationRepo{}
	return NewCaseAdmin(cases, atts, notes, nil, fakeTx{}, csvLikeExporter{}, nil, nil), atts, notes
}

func TestCaseAdmin_MarkReimbursed(t *testing.T) {
	ctx := context.Background()
	cases := newFakeCaseRepo()
	cases.cases["r"] = &entity.ReimbursementCase{ID: "r", Status: entity.CaseStatusReady, MaterialsOK: true}
	cases.cases["n"] = &entity.ReimbursementCase{ID: "n", Status: entity.CaseStatusNeedInfo}
	cases.cases["g"] = &entity.ReimbursementCase{ID: "g", Status: entity.CaseStatusReady, MaterialsOK: false}
	admin, _, _ := newAdmin(cases)

	c, err := admin.MarkReimbursed(ctx, "r", "dana")
	require.NoError(t, err)
	assert.Equal(t, entity.CaseStatusProcessed, c.Status)
	assert.True(t, cases.cases["r"].ReimbursedDone)
	assert.Equal(t, "reimbursed, confirmed by dana", cases.cases["r"].LastAction)

	_, err = admin.MarkReimbursed(ctx, "n", "")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	_, err = admin.MarkReimbursed(ctx, "g", "")
	assert.ErrorIs(t, err, workflow.ErrGuardFailed)

	_, err = admin.MarkReimbursed(ctx, "missing", "")
	assert.ErrorIs(t, err, entity.ErrCaseNotFound)
}

func TestCaseAdmin_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	cases := newFakeCaseRepo()
	cases.cases["1"] = &entity.ReimbursementCase{ID: "1", Status: entity.CaseStatusNeedInfo}
	admin, atts, notes := newAdmin(cases)
	require.NoError(t, atts.Upsert(ctx, &entity.Attachment{CaseID: "1", FileName: "a.png"}))
	require.NoError(t, notes.Create(ctx, &entity.Notification{CaseID: "1", Status: entity.NotificationStatusSent}))

	detail, err := admin.Get(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, detail.Attachments, 1)
	assert.Len(t, detail.Notifications, 1)

	require.NoError(t, admin.Delete(ctx, "1"))
	_, err = admin.Get(ctx, "1")
	assert.ErrorIs(t, err, entity.ErrCaseNotFound)
	assert.Empty(t, atts.rows)
	assert.Empty(t, notes.rows)

	assert.ErrorIs(t, admin.Delete(ctx, "1"), entity.ErrCaseNotFound)
}

func TestCaseAdmin_Export(t *testing.T) {
	cases := newFakeCaseRepo()
	cases.cases["a"] = &entity.ReimbursementCase{ID: "a", Status: entity.CaseStatusReady}
	cases.cases["b"] = &entity.ReimbursementCase{ID: "b", Status: entity.CaseStatusIgnored}
	admin, _, _ := newAdmin(cases)

	var buf bytes.Buffer
	require.NoError(t, admin.Export(context.Background(), &buf, entity.CaseFilter{Statuses: []entity.CaseStatus{entity.CaseStatusReady}}))
	assert.Equal(t, "a;", buf.String())
	assert.Equal(t, "text/plain", admin.ExportContentType())
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock2 := k.Lock("b")
	unlock()
	unlock2()
	assert.Empty(t, k.locks)
}
