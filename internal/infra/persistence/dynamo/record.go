package dynamo

import (
	"time"

	"docucore/pkg/domain"
)

// latestFlag is the wire encoding of the latest marker. The secondary index
// partitions on it, and DynamoDB key attributes cannot be booleans, so the
// flag travels as the literal strings "true"/"false". The bool conversion
// happens only at this boundary.
type latestFlag string

const (
	flagTrue  latestFlag = "true"
	flagFalse latestFlag = "false"
)

func flagFor(latest bool) latestFlag {
	if latest {
		return flagTrue
	}
	return flagFalse
}

// record is the stored item layout. Primary key is (id, version); the
// latest-index GSI keys on (is_latest, last_modified). Timestamps are epoch
// milliseconds so the index range key sorts numerically.
type record struct {
	ID           string            `dynamodbav:"id"`
	Version      int               `dynamodbav:"version"`
	Created      int64             `dynamodbav:"created"`
	LastModified int64             `dynamodbav:"last_modified"`
	IsLatest     latestFlag        `dynamodbav:"is_latest"`
	Title        string            `dynamodbav:"title"`
	Content      string            `dynamodbav:"content"`
	Attributes   map[string]string `dynamodbav:"attributes,omitempty"`
}

func toRecord(doc domain.Document) record {
	return record{
		ID:           doc.ID,
		Version:      doc.Version,
		Created:      doc.CreatedAt.UnixMilli(),
		LastModified: doc.LastModified.UnixMilli(),
		IsLatest:     flagFor(doc.Latest),
		Title:        doc.Title,
		Content:      doc.Content,
		Attributes:   doc.Attributes,
	}
}

func (r record) toDocument() domain.Document {
	return domain.Document{
		ID:           r.ID,
		Version:      r.Version,
		CreatedAt:    time.UnixMilli(r.Created).UTC(),
		LastModified: time.UnixMilli(r.LastModified).UTC(),
		Latest:       r.IsLatest == flagTrue,
		Title:        r.Title,
		Content:      r.Content,
		Attributes:   r.Attributes,
	}
}
