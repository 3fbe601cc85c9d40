package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/ai-reimbursement-triage/internal/application/port"
	"github.com/garyjia/ai-reimbursement-triage/internal/domain/entity"
)

// fakeTextOracle answers by system prompt so one fake can serve every stage
type fakeTextOracle struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
	prompts []string
}

func newFakeTextOracle() *fakeTextOracle {
	return &fakeTextOracle{replies: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeTextOracle) on(system, reply string) *fakeTextOracle {
	f.replies[system] = reply
	return f
}

func (f *fakeTextOracle) Complete(_ context.Context, system, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, system)
	f.prompts = append(f.prompts, prompt)
	if err := f.errs[system]; err != nil {
		return "", err
	}
	reply, ok := f.replies[system]
	if !ok {
		return "", errors.New("unexpected prompt")
	}
	return reply, nil
}

func (f *fakeTextOracle) callCount(system string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == system {
			n++
		}
	}
	return n
}

// fakeVisionOracle returns replies in order; an empty reply string means failure
type fakeVisionOracle struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (f *fakeVisionOracle) Describe(_ context.Context, _, _ string, _ port.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) == 0 {
		return "", errors.New("vision unavailable")
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	if reply == "" {
		return "", errors.New("vision timeout")
	}
	return reply, nil
}

type fakeRenderer struct {
	pages []port.Page
	err   error
}

func (f *fakeRenderer) RenderPages(context.Context, string) ([]port.Page, error) {
	return f.pages, f.err
}

type fakeMailbox struct {
	messages map[string]*port.MailMessage
	refs     []port.MessageRef
	fetchErr error
	listErr  error
}

func (f *fakeMailbox) List(_ context.Context, _ time.Time, limit int) ([]port.MessageRef, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	refs := f.refs
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (f *fakeMailbox) Fetch(_ context.Context, id string) (*port.MailMessage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	m, ok := f.messages[id]
	if !ok {
		return nil, errors.New("no such message")
	}
	return m, nil
}

func (f *fakeMailbox) Close() error { return nil }

// fakeStore writes files under dir so the receipt reader can open them
type fakeStore struct {
	dir string
}

func (f *fakeStore) Save(_ context.Context, caseID, fileName string, content []byte) ([]port.StoredFile, error) {
	dir := filepath.Join(f.dir, caseID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, fileName)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return nil, err
	}
	return []port.StoredFile{{
		FileName: fileName,
		Path:     path,
		FileType: entity.DetectFileType(fileName),
		Size:     int64(len(content)),
	}}, nil
}

func (f *fakeStore) List(context.Context, string) ([]port.StoredFile, error) { return nil, nil }
func (f *fakeStore) Remove(context.Context, string) error                   { return nil }

type fakeCaseRepo struct {
	mu        sync.Mutex
	cases     map[string]*entity.ReimbursementCase
	upserts   int
	upsertErr error
}

func newFakeCaseRepo() *fakeCaseRepo {
	return &fakeCaseRepo{cases: map[string]*entity.ReimbursementCase{}}
}

func (f *fakeCaseRepo) Upsert(_ context.Context, c *entity.ReimbursementCase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	cp := *c
	f.cases[c.ID] = &cp
	return nil
}

func (f *fakeCaseRepo) GetByID(_ context.Context, id string) (*entity.ReimbursementCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCaseRepo) Exists(ctx context.Context, id string) (bool, error) {
	c, err := f.GetByID(ctx, id)
	return c != nil, err
}

func (f *fakeCaseRepo) List(_ context.Context, filter entity.CaseFilter) ([]*entity.ReimbursementCase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.ReimbursementCase
	for _, c := range f.cases {
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				match = match || c.Status == s
			}
			if !match {
				continue
			}
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCaseRepo) MarkReimbursed(_ context.Context, id, lastAction string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok {
		return entity.ErrCaseNotFound
	}
	c.ReimbursedDone = true
	c.Status = entity.CaseStatusProcessed
	c.LastAction = lastAction
	return nil
}

func (f *fakeCaseRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cases[id]; !ok {
		return entity.ErrCaseNotFound
	}
	delete(f.cases, id)
	return nil
}

type fakeAttachmentRepo struct {
	mu   sync.Mutex
	rows map[string]*entity.Attachment
}

func newFakeAttachmentRepo() *fakeAttachmentRepo {
	return &fakeAttachmentRepo{rows: map[string]*entity.Attachment{}}
}

func (f *fakeAttachmentRepo) Upsert(_ context.Context, a *entity.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.rows[a.CaseID+"/"+a.FileName] = &cp
	return nil
}

func (f *fakeAttachmentRepo) GetByCaseID(_ context.Context, caseID string) ([]*entity.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Attachment
	for k, a := range f.rows {
		if strings.HasPrefix(k, caseID+"/") {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out, nil
}

func (f *fakeAttachmentRepo) DeleteByCaseID(_ context.Context, caseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.rows {
		if strings.HasPrefix(k, caseID+"/") {
			delete(f.rows, k)
		}
	}
	return nil
}

type fakeNotificationRepo struct {
	mu   sync.Mutex
	rows []*entity.Notification
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *entity.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, n)
	return nil
}

func (f *fakeNotificationRepo) GetByCaseID(_ context.Context, caseID string) ([]*entity.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.Notification
	for _, n := range f.rows {
		if n.CaseID == caseID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNotificationRepo) DeleteByCaseID(_ context.Context, caseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, n := range f.rows {
		if n.CaseID != caseID {
			kept = append(kept, n)
		}
	}
	f.rows = kept
	return nil
}

type fakeTx struct{}

func (fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []port.OutgoingMessage
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, msg port.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}
