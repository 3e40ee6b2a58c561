package dynamo

import (
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"

	"github.com/paperflow/arxetl/internal/item"
)

// toAttributes converts an item into DynamoDB attribute values. Items hold
// only strings, bools, numbers, lists and maps after item.Convert.
func toAttributes(it item.Item) (map[string]*dynamodb.AttributeValue, error) {
	out := make(map[string]*dynamodb.AttributeValue, len(it))
	for k, v := range it {
		av, err := toAttribute(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func toAttribute(v any) (*dynamodb.AttributeValue, error) {
	switch val := v.(type) {
	case string:
		return &dynamodb.AttributeValue{S: aws.String(val)}, nil
	case bool:
		return &dynamodb.AttributeValue{BOOL: aws.Bool(val)}, nil
	case item.Number:
		return &dynamodb.AttributeValue{N: aws.String(string(val))}, nil
	case []any:
		list := make([]*dynamodb.AttributeValue, len(val))
		for i, elem := range val {
			av, err := toAttribute(elem)
			if err != nil {
				return nil, err
			}
			list[i] = av
		}
		return &dynamodb.AttributeValue{L: list}, nil
	case map[string]any:
		return toMap(val)
	case item.Item:
		return toMap(val)
	default:
		return nil, fmt.Errorf("%w %T", item.ErrUnsupportedType, v)
	}
}

func toMap(m map[string]any) (*dynamodb.AttributeValue, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]*dynamodb.AttributeValue, len(m))
	for _, k := range keys {
		av, err := toAttribute(m[k])
		if err != nil {
			return nil, err
		}
		out[k] = av
	}
	return &dynamodb.AttributeValue{M: out}, nil
}

// fromAttributes converts a DynamoDB item back. NULL attributes are dropped.
func fromAttributes(attrs map[string]*dynamodb.AttributeValue) item.Item {
	it := make(item.Item, len(attrs))
	for k, av := range attrs {
		if v, ok := fromAttribute(av); ok {
			it[k] = v
		}
	}
	return it
}

func fromAttribute(av *dynamodb.AttributeValue) (any, bool) {
	switch {
	case av == nil:
		return nil, false
	case av.S != nil:
		return *av.S, true
	case av.N != nil:
		return item.Number(*av.N), true
	case av.BOOL != nil:
		return *av.BOOL, true
	case av.L != nil:
		list := make([]any, 0, len(av.L))
		for _, elem := range av.L {
			if v, ok := fromAttribute(elem); ok {
				list = append(list, v)
			}
		}
		return list, true
	case av.M != nil:
		m := make(map[string]any, len(av.M))
		for k, elem := range av.M {
			if v, ok := fromAttribute(elem); ok {
				m[k] = v
			}
		}
		return m, true
	case av.SS != nil:
		list := make([]any, len(av.SS))
		for i, s := range av.SS {
			list[i] = aws.StringValue(s)
		}
		return list, true
	default:
		return nil, false
	}
}
