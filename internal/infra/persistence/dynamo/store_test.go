package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"docucore/pkg/domain"
)

// fakeDynamo simulates the slice of DynamoDB behavior the store exercises:
// conditional puts on the (id, version) key, primary-key queries with result
// pagination, and latest-index queries ordered by last_modified descending.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int   // caps query pages when > 0, to exercise pagination
	failWith error // when set, every call fails with it
	// afterQuery runs once after the next Query call, before its results are
	// returned. Used to interleave a rival writer between read and write.
	afterQuery func(f *fakeDynamo)
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(rec record) string { return fmt.Sprintf("%s#%d", rec.ID, rec.Version) }

func (f *fakeDynamo) insert(rec record) {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		panic(err)
	}
	f.items[itemKey(rec)] = item
}

func (f *fakeDynamo) record(id string, version int) (record, bool) {
	item, ok := f.items[fmt.Sprintf("%s#%d", id, version)]
	if !ok {
		return record{}, false
	}
	var rec record
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		panic(err)
	}
	return rec, true
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	var rec record
	if err := attributevalue.UnmarshalMap(in.Item, &rec); err != nil {
		return nil, err
	}
	if in.ConditionExpression != nil {
		if _, exists := f.items[itemKey(rec)]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	f.items[itemKey(rec)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	if hook := f.afterQuery; hook != nil {
		f.afterQuery = nil
		defer hook(f)
	}

	var recs []record
	for _, item := range f.items {
		var rec record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	if in.IndexName != nil {
		want := in.ExpressionAttributeValues[":latest"].(*types.AttributeValueMemberS).Value
		filtered := recs[:0]
		for _, rec := range recs {
			if string(rec.IsLatest) == want {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
		sort.Slice(recs, func(i, j int) bool {
			if recs[i].LastModified != recs[j].LastModified {
				return recs[i].LastModified > recs[j].LastModified
			}
			return recs[i].ID < recs[j].ID
		})
	} else {
		want := in.ExpressionAttributeValues[":id"].(*types.AttributeValueMemberS).Value
		filtered := recs[:0]
		for _, rec := range recs {
			if rec.ID == want {
				filtered = append(filtered, rec)
			}
		}
		recs = filtered
		sort.Slice(recs, func(i, j int) bool { return recs[i].Version < recs[j].Version })
		if in.ScanIndexForward != nil && !*in.ScanIndexForward {
			for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
				recs[i], recs[j] = recs[j], recs[i]
			}
		}
	}

	if len(in.ExclusiveStartKey) > 0 {
		var after record
		if err := attributevalue.UnmarshalMap(in.ExclusiveStartKey, &after); err != nil {
			return nil, err
		}
		start := 0
		for i, rec := range recs {
			if rec.ID == after.ID && rec.Version == after.Version {
				start = i + 1
				break
			}
		}
		recs = recs[start:]
	}

	limit := len(recs)
	if in.Limit != nil && int(*in.Limit) < limit {
		limit = int(*in.Limit)
	}
	if f.pageSize > 0 && f.pageSize < limit {
		limit = f.pageSize
	}

	out := &dynamodb.QueryOutput{}
	for _, rec := range recs[:limit] {
		out.Items = append(out.Items, f.items[itemKey(rec)])
	}
	if limit < len(recs) && limit > 0 {
		last := recs[limit-1]
		lek, err := attributevalue.MarshalMap(cursor{
			ID:           last.ID,
			Version:      last.Version,
			IsLatest:     last.IsLatest,
			LastModified: last.LastModified,
		})
		if err != nil {
			return nil, err
		}
		out.LastEvaluatedKey = lek
	}
	return out, nil
}

func newTestStore(t *testing.T) (*Store, *fakeDynamo) {
	t.Helper()
	fake := newFakeDynamo()
	s := NewWithClient(fake, "documents", "")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	return s, fake
}

func strptr(s string) *string { return &s }

func TestCreateWritesFencedVersionOne(t *testing.T) {
	s, fake := newTestStore(t)
	doc, err := s.Create(context.Background(), domain.DocumentDraft{
		Title:      "Biology syllabus",
		Attributes: map[string]string{"subject": "Bio", "status": "draft"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.Version != 1 || !doc.Latest {
		t.Fatalf("expected latest version 1, got %+v", doc)
	}
	rec, ok := fake.record(doc.ID, 1)
	if !ok {
		t.Fatalf("expected stored item for (id, 1)")
	}
	if rec.IsLatest != flagTrue {
		t.Fatalf("expected is_latest %q on the wire, got %q", flagTrue, rec.IsLatest)
	}
	if rec.Created != rec.LastModified {
		t.Fatalf("expected created and last_modified to match at version 1")
	}
}

func TestGetLatestUnknownIDReturnsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.GetLatest(context.Background(), "unknown-id"); !domain.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestUpdateDemotesThenPromotes(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, domain.DocumentDraft{
		Title:      "Biology syllabus",
		Attributes: map[string]string{"subject": "Bio", "status": "draft"},
	})

	updated, err := s.Update(ctx, doc.ID, domain.DocumentPatch{
		Attributes: map[string]string{"status": "approved"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
	if updated.Attributes["subject"] != "Bio" || updated.Attributes["status"] != "approved" {
		t.Fatalf("expected key-by-key merge, got %v", updated.Attributes)
	}

	old, _ := fake.record(doc.ID, 1)
	if old.IsLatest != flagFalse {
		t.Fatalf("expected demoted version 1, got flag %q", old.IsLatest)
	}
	cur, _ := fake.record(doc.ID, 2)
	if cur.IsLatest != flagTrue {
		t.Fatalf("expected promoted version 2, got flag %q", cur.IsLatest)
	}
	if cur.Created != old.Created {
		t.Fatalf("expected created to be copied unchanged across versions")
	}
	if cur.LastModified <= old.LastModified {
		t.Fatalf("expected last_modified to advance")
	}

	latest, err := s.GetLatest(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if latest.Version != 2 || !latest.Latest {
		t.Fatalf("expected version 2 as latest, got %+v", latest)
	}
}

func TestCreateVersionDuplicatesPayload(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, domain.DocumentDraft{Title: "checkpointed", Content: "body"})

	snap, err := s.CreateVersion(ctx, doc.ID)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if snap.Version != 2 || snap.Title != "checkpointed" || snap.Content != "body" {
		t.Fatalf("expected unchanged payload at version 2, got %+v", snap)
	}
	if !snap.CreatedAt.Equal(doc.CreatedAt) {
		t.Fatalf("expected created timestamp copied unchanged")
	}
}

func TestUpdateLosesRaceReturnsConflict(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, domain.DocumentDraft{Title: "contended"})

	// A rival writer claims version 2 between our read and our fenced write.
	fake.afterQuery = func(f *fakeDynamo) {
		rival, _ := f.record(doc.ID, 1)
		rival.Version = 2
		rival.LastModified++
		f.insert(rival)
	}

	_, err := s.Update(ctx, doc.ID, domain.DocumentPatch{Title: strptr("mine")})
	if !domain.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	var conflict domain.ConflictError
	errors.As(err, &conflict)
	if conflict.ID != doc.ID || conflict.Version != 2 {
		t.Fatalf("expected conflict on version 2 of %s, got %+v", doc.ID, conflict)
	}
}

func TestAuditTrailFollowsResultPagination(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, domain.DocumentDraft{Title: "audited"})
	for i := 0; i < 4; i++ {
		if _, err := s.CreateVersion(ctx, doc.ID); err != nil {
			t.Fatalf("create version %d: %v", i, err)
		}
	}
	fake.pageSize = 2

	trail, err := s.AuditTrail(ctx, doc.ID)
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if len(trail) != 5 {
		t.Fatalf("expected 5 versions, got %d", len(trail))
	}
	for i, v := range trail {
		if v.Version != i+1 {
			t.Fatalf("expected ascending dense versions, got %d at %d", v.Version, i)
		}
		if v.Latest != (i == 4) {
			t.Fatalf("expected only the final version latest, got %+v", v)
		}
	}
}

func TestAuditTrailUnknownIDIsEmptyNotError(t *testing.T) {
	s, _ := newTestStore(t)
	trail, err := s.AuditTrail(context.Background(), "unknown-id")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(trail) != 0 {
		t.Fatalf("expected empty trail, got %d", len(trail))
	}
}

func TestListLatestPaginationRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	var created []string
	for i := 0; i < 5; i++ {
		doc, err := s.Create(ctx, domain.DocumentDraft{Title: fmt.Sprintf("doc %d", i)})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		created = append(created, doc.ID)
	}

	var paged []string
	token := ""
	for {
		page, err := s.ListLatest(ctx, domain.ListOptions{Limit: 2, Token: token})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if page.Total != len(page.Documents) {
			t.Fatalf("expected per-page total, got %d for %d documents", page.Total, len(page.Documents))
		}
		for _, doc := range page.Documents {
			paged = append(paged, doc.ID)
		}
		if page.NextToken == "" {
			break
		}
		token = page.NextToken
	}

	if len(paged) != 5 {
		t.Fatalf("expected all 5 documents across pages, got %d", len(paged))
	}
	// Newest first: creation order reversed, no overlap, no gap.
	for i, id := range paged {
		if want := created[len(created)-1-i]; id != want {
			t.Fatalf("expected %s at position %d, got %s", want, i, id)
		}
	}
}

func TestListLatestShowsOnlyCurrentVersions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, domain.DocumentDraft{Title: "v1", Attributes: map[string]string{"status": "draft"}})
	if _, err := s.Update(ctx, doc.ID, domain.DocumentPatch{Attributes: map[string]string{"status": "approved"}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	page, err := s.ListLatest(ctx, domain.ListOptions{Filter: map[string]string{"status": "approved"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Documents) != 1 || page.Documents[0].Version != 2 {
		t.Fatalf("expected exactly the current version, got %+v", page.Documents)
	}

	page, err = s.ListLatest(ctx, domain.ListOptions{Filter: map[string]string{"status": "draft"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Documents) != 0 {
		t.Fatalf("expected demoted version to be invisible, got %+v", page.Documents)
	}
}

func TestListLatestFilterCanReturnShortPageWithToken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	// Newest two documents are drafts, the older two approved: with limit 2
	// the first page matches nothing but more matches exist behind the token.
	for _, status := range []string{"approved", "approved", "draft", "draft"} {
		if _, err := s.Create(ctx, domain.DocumentDraft{Attributes: map[string]string{"status": status}}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	page, err := s.ListLatest(ctx, domain.ListOptions{Limit: 2, Filter: map[string]string{"status": "approved"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Documents) != 0 {
		t.Fatalf("expected the first page to filter out both drafts, got %+v", page.Documents)
	}
	if page.NextToken == "" {
		t.Fatalf("expected a continuation token while matches remain")
	}

	var matched int
	token := page.NextToken
	for token != "" {
		next, err := s.ListLatest(ctx, domain.ListOptions{Limit: 2, Token: token, Filter: map[string]string{"status": "approved"}})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		matched += len(next.Documents)
		token = next.NextToken
	}
	if matched != 2 {
		t.Fatalf("expected to find both approved documents via iteration, got %d", matched)
	}
}

func TestListLatestRejectsMalformedToken(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.ListLatest(context.Background(), domain.ListOptions{Token: "%%bogus%%"}); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestBackendFailuresSurfaceAsUnavailable(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	doc, _ := s.Create(ctx, domain.DocumentDraft{Title: "doomed"})

	cause := errors.New("connection reset")
	fake.failWith = cause

	checks := map[string]func() error{
		"Create":        func() error { _, err := s.Create(ctx, domain.DocumentDraft{}); return err },
		"GetLatest":     func() error { _, err := s.GetLatest(ctx, doc.ID); return err },
		"Update":        func() error { _, err := s.Update(ctx, doc.ID, domain.DocumentPatch{}); return err },
		"CreateVersion": func() error { _, err := s.CreateVersion(ctx, doc.ID); return err },
		"ListLatest":    func() error { _, err := s.ListLatest(ctx, domain.ListOptions{}); return err },
		"AuditTrail":    func() error { _, err := s.AuditTrail(ctx, doc.ID); return err },
	}
	for op, call := range checks {
		err := call()
		var unavailable domain.UnavailableError
		if !errors.As(err, &unavailable) {
			t.Fatalf("%s: expected UnavailableError, got %v", op, err)
		}
		if !errors.Is(err, cause) {
			t.Fatalf("%s: expected cause to be preserved", op)
		}
	}
}

func TestDriverDiscriminator(t *testing.T) {
	s, _ := newTestStore(t)
	if s.Driver() != domain.DriverDynamo {
		t.Fatalf("expected dynamo driver, got %s", s.Driver())
	}
}
