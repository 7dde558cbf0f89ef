package dynamo

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"docucore/pkg/domain"
)

// cursor mirrors the latest-index LastEvaluatedKey: the GSI key pair plus the
// table key pair. It round-trips through JSON and raw-URL base64 to form the
// opaque continuation token handed to callers. The shape is private to this
// backend and may change between releases; callers must not interpret it.
type cursor struct {
	ID           string     `json:"id" dynamodbav:"id"`
	Version      int        `json:"version" dynamodbav:"version"`
	IsLatest     latestFlag `json:"is_latest" dynamodbav:"is_latest"`
	LastModified int64      `json:"last_modified" dynamodbav:"last_modified"`
}

// encodeCursor serializes a Query LastEvaluatedKey into an opaque token.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	var c cursor
	if err := attributevalue.UnmarshalMap(key, &c); err != nil {
		return "", fmt.Errorf("encode continuation token: %w", err)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode continuation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// decodeCursor rebuilds the ExclusiveStartKey a token encodes. Any malformed
// input maps to domain.ErrInvalidToken so transports can reject it as a
// caller mistake rather than a backend failure.
func decodeCursor(token string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	var c cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if c.ID == "" || c.Version < 1 {
		return nil, fmt.Errorf("%w: incomplete cursor", domain.ErrInvalidToken)
	}
	key, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	return key, nil
}
