// Package ddb decodes DynamoDB stream events whose items hold search documents.
//
// Items are keyed by pk (document id) and sk (index name), with the document itself
// in the object attribute.
package ddb

import (
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"github.com/letmevibethatforyou/searchodm/document"
)

// DynamoDBEvent represents a DynamoDB stream event
type DynamoDBEvent struct {
	Records []DynamoDBEventRecord `json:"Records"`
}

// DynamoDBEventRecord represents a single DynamoDB stream record
type DynamoDBEventRecord struct {
	AWSRegion      string               `json:"awsRegion"`
	Change         DynamoDBStreamRecord `json:"dynamodb"`
	EventID        string               `json:"eventID"`
	EventName      string               `json:"eventName"`
	EventSource    string               `json:"eventSource"`
	EventVersion   string               `json:"eventVersion"`
	EventSourceArn string               `json:"eventSourceARN"`
}

// DynamoDBStreamRecord represents the DynamoDB stream data
type DynamoDBStreamRecord struct {
	ApproximateCreationDateTime int64                           `json:"ApproximateCreationDateTime,omitempty"`
	Keys                        map[string]types.AttributeValue `json:"Keys,omitempty"`
	NewImage                    map[string]types.AttributeValue `json:"NewImage,omitempty"`
	OldImage                    map[string]types.AttributeValue `json:"OldImage,omitempty"`
	SequenceNumber              string                          `json:"SequenceNumber"`
	SizeBytes                   int64                           `json:"SizeBytes"`
	StreamViewType              string                          `json:"StreamViewType"`
}

// UnmarshalJSON decodes the attribute maps from the stream's typed JSON ({"S": ...}).
func (r *DynamoDBStreamRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ApproximateCreationDateTime json.Number     `json:"ApproximateCreationDateTime,omitempty"`
		Keys                        json.RawMessage `json:"Keys,omitempty"`
		NewImage                    json.RawMessage `json:"NewImage,omitempty"`
		OldImage                    json.RawMessage `json:"OldImage,omitempty"`
		SequenceNumber              string          `json:"SequenceNumber"`
		SizeBytes                   int64           `json:"SizeBytes"`
		StreamViewType              string          `json:"StreamViewType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := DynamoDBStreamRecord{
		SequenceNumber: raw.SequenceNumber,
		SizeBytes:      raw.SizeBytes,
		StreamViewType: raw.StreamViewType,
	}
	if raw.ApproximateCreationDateTime != "" {
		f, err := raw.ApproximateCreationDateTime.Float64()
		if err != nil {
			return errors.Wrap(err, "ApproximateCreationDateTime")
		}
		out.ApproximateCreationDateTime = int64(f)
	}

	for _, m := range []struct {
		name   string
		raw    json.RawMessage
		target *map[string]types.AttributeValue
	}{
		{"Keys", raw.Keys, &out.Keys},
		{"NewImage", raw.NewImage, &out.NewImage},
		{"OldImage", raw.OldImage, &out.OldImage},
	} {
		if len(m.raw) == 0 || string(m.raw) == "null" {
			continue
		}
		decoded, err := UnmarshalAttributeValueMap(m.raw)
		if err != nil {
			return errors.Wrap(err, m.name)
		}
		*m.target = decoded
	}

	*r = out
	return nil
}

// UnmarshalAttributeValueMap decodes DynamoDB JSON into SDK attribute values.
func UnmarshalAttributeValueMap(data []byte) (map[string]types.AttributeValue, error) {
	var image map[string]events.DynamoDBAttributeValue
	if err := json.Unmarshal(data, &image); err != nil {
		return nil, errors.Wrap(err, "failed to decode DynamoDB JSON")
	}
	return toAttributeValueMap(image), nil
}

func toAttributeValueMap(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		out[k] = toAttributeValue(v)
	}
	return out
}

func toAttributeValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: toAttributeValueMap(v.Map())}
	case events.DataTypeList:
		list := make([]types.AttributeValue, len(v.List()))
		for i, item := range v.List() {
			list[i] = toAttributeValue(item)
		}
		return &types.AttributeValueMemberL{Value: list}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	default:
		return &types.AttributeValueMemberNULL{Value: true}
	}
}

// DynamoDBOperationType represents the type of DynamoDB operation
type DynamoDBOperationType string

const (
	DynamoDBOperationTypeInsert DynamoDBOperationType = "INSERT"
	DynamoDBOperationTypeModify DynamoDBOperationType = "MODIFY"
	DynamoDBOperationTypeRemove DynamoDBOperationType = "REMOVE"
)

// Record represents a processed DynamoDB record with extracted fields
type Record struct {
	ID        string         `dynamodbav:"pk"`     // PK field
	IndexName string         `dynamodbav:"sk"`     // SK field
	Object    map[string]any `dynamodbav:"object"` // object field
}

// UnmarshalRecord converts a DynamoDB image into a Record. Numbers decode as
// json.Number so decimal fields keep their digits.
func UnmarshalRecord(image map[string]types.AttributeValue) (Record, error) {
	var record Record
	err := attributevalue.UnmarshalMapWithOptions(image, &record, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return Record{}, err
	}
	if record.Object != nil {
		record.Object = plainNumbers(record.Object).(map[string]any)
	}
	return record, nil
}

func plainNumbers(v any) any {
	switch val := v.(type) {
	case attributevalue.Number:
		return json.Number(val)
	case []attributevalue.Number:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = json.Number(n)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case map[string]any:
		for k, item := range val {
			val[k] = plainNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = plainNumbers(item)
		}
		return val
	default:
		return v
	}
}

// Document returns the record's object as a document carrying the record id.
// DynamoDB maps do not keep attribute order, so keys come back sorted (nested
// documents included) rather than in the order the entity declared them.
func (r Record) Document() *document.Document {
	doc := document.FromMap(r.Object)
	doc.SetID(r.ID)
	return doc
}

// Item builds the DynamoDB item for a document, the inverse of UnmarshalRecord.
func Item(indexName, id string, doc *document.Document) (map[string]types.AttributeValue, error) {
	object := ddbNumbers(doc.ToMap()).(map[string]any)
	item, err := attributevalue.MarshalMap(Record{ID: id, IndexName: indexName, Object: object})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal item %s", id)
	}
	return item, nil
}

func ddbNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		return attributevalue.Number(val)
	case map[string]any:
		for k, item := range val {
			val[k] = ddbNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = ddbNumbers(item)
		}
		return val
	default:
		return v
	}
}
