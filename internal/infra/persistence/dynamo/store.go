// Package dynamo implements the document store contract on Amazon DynamoDB.
//
// Each version is one item keyed by (id, version). The latest-index global
// secondary index keys on (is_latest, last_modified) so ListLatest can read
// only current versions, newest first, without scanning history.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"docucore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.Store = (*Store)(nil)

// DefaultPageSize caps ListLatest pages when the caller supplies no limit.
const DefaultPageSize = 50

// DefaultIndexName is the GSI answering the "current versions by recency"
// access pattern.
const DefaultIndexName = "latest-index"

// api is the narrow slice of the DynamoDB client the store depends on.
// Tests substitute a fake; production passes *dynamodb.Client.
type api interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables.
type Config struct {
	Table    string
	Region   string
	Endpoint string // optional; if set targets a local DynamoDB emulator
	Index    string // optional; defaults to DefaultIndexName
}

// Environment variables:
//   DOCUCORE_STORAGE_DRIVER=dynamo
//   DOCUCORE_DYNAMO_TABLE=<table> (required)
//   DOCUCORE_DYNAMO_REGION=<region> (default us-east-1)
//   DOCUCORE_DYNAMO_ENDPOINT=<url> (optional, DynamoDB Local)
//   AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// Store is the durable document store backend.
//
// Update and CreateVersion need two separate writes (demote the old latest,
// then put the new one) and DynamoDB offers no multi-item atomicity here, so
// a concurrent ListLatest may briefly observe zero current versions for an
// id mid-update. Demote-then-promote ordering is deliberate: a transient
// "no current version" is safer for readers than two of them. Racing writers
// are fenced by a conditional put on the new version's key; the loser gets a
// domain.ConflictError and must retry.
type Store struct {
	client api
	table  string
	index  string
	nowFn  func() time.Time
}

// New creates a DynamoDB document store from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("dynamo table required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.Endpoint != "" {
		// Local emulators accept any credentials but reject an empty chain.
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewWithClient(client, cfg.Table, cfg.Index), nil
}

// OpenFromEnv constructs a DynamoDB store from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	table := os.Getenv("DOCUCORE_DYNAMO_TABLE")
	if table == "" {
		return nil, fmt.Errorf("DOCUCORE_DYNAMO_TABLE required for dynamo driver")
	}
	cfg := Config{
		Table:    table,
		Region:   os.Getenv("DOCUCORE_DYNAMO_REGION"),
		Endpoint: strings.TrimSpace(os.Getenv("DOCUCORE_DYNAMO_ENDPOINT")),
	}
	return New(ctx, cfg)
}

// NewWithClient wires a store onto an existing client. Tests use it to
// substitute a fake API.
func NewWithClient(client api, table, index string) *Store {
	if index == "" {
		index = DefaultIndexName
	}
	return &Store{
		client: client,
		table:  table,
		index:  index,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.nowFn = now }

// Driver reports the backend discriminator.
func (s *Store) Driver() domain.Driver { return domain.DriverDynamo }

// Create persists a new document at version 1.
func (s *Store) Create(ctx context.Context, draft domain.DocumentDraft) (domain.Document, error) {
	now := s.nowFn()
	doc := domain.Document{
		ID:           uuid.NewString(),
		Version:      1,
		CreatedAt:    now,
		LastModified: now,
		Latest:       true,
		Title:        draft.Title,
		Content:      draft.Content,
	}
	if len(draft.Attributes) > 0 {
		doc.Attributes = make(map[string]string, len(draft.Attributes))
		for k, v := range draft.Attributes {
			doc.Attributes[k] = v
		}
	}
	if err := s.putFenced(ctx, "Create", doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// GetLatest returns the current version of id via a descending single-item
// query on the primary key. The read is strongly consistent so a writer's
// own update is immediately visible to its next read.
func (s *Store) GetLatest(ctx context.Context, id string) (domain.Document, error) {
	doc, err := s.readLatest(ctx, "GetLatest", id)
	if err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Update applies a partial payload on top of the current latest version and
// appends the result as a new version.
func (s *Store) Update(ctx context.Context, id string, patch domain.DocumentPatch) (domain.Document, error) {
	return s.appendVersion(ctx, "Update", id, func(next *domain.Document) { patch.Apply(next) })
}

// CreateVersion duplicates the current payload unchanged into a new version.
func (s *Store) CreateVersion(ctx context.Context, id string) (domain.Document, error) {
	return s.appendVersion(ctx, "CreateVersion", id, func(*domain.Document) {})
}

func (s *Store) appendVersion(ctx context.Context, op, id string, mutate func(*domain.Document)) (domain.Document, error) {
	prev, err := s.readLatest(ctx, op, id)
	if err != nil {
		return domain.Document{}, err
	}

	next := prev.Clone()
	mutate(&next)
	next.Version = prev.Version + 1
	next.CreatedAt = prev.CreatedAt
	next.LastModified = s.nowFn()
	next.Latest = true

	// Demote first: readers briefly see no current version rather than two.
	demoted := prev.Clone()
	demoted.Latest = false
	if err := s.putUnconditional(ctx, op, demoted); err != nil {
		return domain.Document{}, err
	}
	if err := s.putFenced(ctx, op, next); err != nil {
		return domain.Document{}, err
	}
	return next, nil
}

// putFenced writes doc only if no item with its (id, version) key exists.
// A concurrent writer that already claimed the key surfaces as ConflictError.
func (s *Store) putFenced(ctx context.Context, op string, doc domain.Document) error {
	item, err := attributevalue.MarshalMap(toRecord(doc))
	if err != nil {
		return domain.UnavailableError{Op: op, Err: err}
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ConflictError{ID: doc.ID, Version: doc.Version}
		}
		return domain.UnavailableError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) putUnconditional(ctx context.Context, op string, doc domain.Document) error {
	item, err := attributevalue.MarshalMap(toRecord(doc))
	if err != nil {
		return domain.UnavailableError{Op: op, Err: err}
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return domain.UnavailableError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) readLatest(ctx context.Context, op, id string) (domain.Document, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    aws.String("id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: id}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
		ConsistentRead:            aws.Bool(true),
	})
	if err != nil {
		return domain.Document{}, domain.UnavailableError{Op: op, Err: err}
	}
	if len(out.Items) == 0 {
		return domain.Document{}, domain.NotFoundError{ID: id}
	}
	var rec record
	if err := attributevalue.UnmarshalMap(out.Items[0], &rec); err != nil {
		return domain.Document{}, domain.UnavailableError{Op: op, Err: err}
	}
	return rec.toDocument(), nil
}

// ListLatest queries the latest-index for current versions, newest first.
// Attribute filters are applied on the fetched page because the index covers
// no compound predicate; a page can therefore come back shorter than the
// limit while more matches exist behind the continuation token.
func (s *Store) ListLatest(ctx context.Context, opts domain.ListOptions) (domain.Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	in := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.index),
		KeyConditionExpression:    aws.String("is_latest = :latest"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":latest": &types.AttributeValueMemberS{Value: string(flagTrue)}},
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(int32(limit)),
	}
	if opts.Token != "" {
		start, err := decodeCursor(opts.Token)
		if err != nil {
			return domain.Page{}, err
		}
		in.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, in)
	if err != nil {
		return domain.Page{}, domain.UnavailableError{Op: "ListLatest", Err: err}
	}

	docs := make([]domain.Document, 0, len(out.Items))
	for _, item := range out.Items {
		var rec record
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return domain.Page{}, domain.UnavailableError{Op: "ListLatest", Err: err}
		}
		doc := rec.toDocument()
		if matchesFilter(doc, opts.Filter) {
			docs = append(docs, doc)
		}
	}

	page := domain.Page{Documents: docs, Total: len(docs)}
	if len(out.LastEvaluatedKey) > 0 {
		token, err := encodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return domain.Page{}, domain.UnavailableError{Op: "ListLatest", Err: err}
		}
		page.NextToken = token
	}
	return page, nil
}

// AuditTrail walks the primary key space for id ascending, following result
// pagination until the history is exhausted. Unknown ids yield an empty
// sequence, not an error.
func (s *Store) AuditTrail(ctx context.Context, id string) ([]domain.Document, error) {
	docs := []domain.Document{}
	var start map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.table),
			KeyConditionExpression:    aws.String("id = :id"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":id": &types.AttributeValueMemberS{Value: id}},
			ScanIndexForward:          aws.Bool(true),
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, domain.UnavailableError{Op: "AuditTrail", Err: err}
		}
		for _, item := range out.Items {
			var rec record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, domain.UnavailableError{Op: "AuditTrail", Err: err}
			}
			docs = append(docs, rec.toDocument())
		}
		if len(out.LastEvaluatedKey) == 0 {
			return docs, nil
		}
		start = out.LastEvaluatedKey
	}
}

func matchesFilter(doc domain.Document, filter map[string]string) bool {
	for k, want := range filter {
		if doc.Attributes[k] != want {
			return false
		}
	}
	return true
}
