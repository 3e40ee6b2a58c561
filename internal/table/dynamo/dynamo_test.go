package dynamo

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/table"
	"github.com/paperflow/arxetl/internal/table/tabletest"
)

// fakeDynamo is an in-memory DynamoDB that understands the requests this
// package sends. Unimplemented methods panic through the nil interface.
type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI

	mu          sync.Mutex
	created     *dynamodb.CreateTableInput
	describeErr error
	waitErr     error
	items       map[string]map[string]*dynamodb.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]*dynamodb.AttributeValue)}
}

func (f *fakeDynamo) DescribeTableWithContext(ctx aws.Context, in *dynamodb.DescribeTableInput, _ ...request.Option) (*dynamodb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if f.created == nil {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "no table", nil)
	}
	return &dynamodb.DescribeTableOutput{Table: &dynamodb.TableDescription{
		TableName:   in.TableName,
		TableStatus: aws.String(dynamodb.TableStatusActive),
	}}, nil
}

func (f *fakeDynamo) CreateTableWithContext(ctx aws.Context, in *dynamodb.CreateTableInput, _ ...request.Option) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = in
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) WaitUntilTableExistsWithContext(ctx aws.Context, in *dynamodb.DescribeTableInput, _ ...request.WaiterOption) error {
	return f.waitErr
}

func (f *fakeDynamo) GetItemWithContext(ctx aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.StringValue(in.Key[table.KeyAttribute].S)
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeDynamo) PutItemWithContext(ctx aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[aws.StringValue(in.Item[table.KeyAttribute].S)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) QueryPagesWithContext(ctx aws.Context, in *dynamodb.QueryInput, fn func(*dynamodb.QueryOutput, bool) bool, _ ...request.Option) error {
	if aws.StringValue(in.IndexName) != table.IndexName {
		return errors.New("query without index")
	}
	category := aws.StringValue(in.ExpressionAttributeValues[":c"].S)
	var from, to string
	if v, ok := in.ExpressionAttributeValues[":from"]; ok {
		from = aws.StringValue(v.S)
	}
	if v, ok := in.ExpressionAttributeValues[":to"]; ok {
		to = aws.StringValue(v.S)
	}
	q := table.CategoryQuery{From: from, To: to}

	f.mu.Lock()
	var matched []map[string]*dynamodb.AttributeValue
	for _, attrs := range f.items {
		cat, date := attrs[table.IndexHashAttr], attrs[table.IndexRangeAttr]
		if cat == nil || date == nil {
			continue // sparse index
		}
		if aws.StringValue(cat.S) == category && q.InRange(aws.StringValue(date.S)) {
			matched = append(matched, attrs)
		}
	}
	f.mu.Unlock()

	forward := aws.BoolValue(in.ScanIndexForward)
	sort.Slice(matched, func(i, j int) bool {
		a := aws.StringValue(matched[i][table.IndexRangeAttr].S)
		b := aws.StringValue(matched[j][table.IndexRangeAttr].S)
		if a == b {
			return aws.StringValue(matched[i][table.KeyAttribute].S) < aws.StringValue(matched[j][table.KeyAttribute].S)
		}
		return (a < b) == forward
	})

	pageSize := len(matched)
	if in.Limit != nil {
		pageSize = int(*in.Limit)
	}
	for start := 0; start < len(matched) || start == 0; start += max(pageSize, 1) {
		end := min(start+max(pageSize, 1), len(matched))
		last := end == len(matched)
		if !fn(&dynamodb.QueryOutput{Items: matched[start:end]}, last) || last {
			break
		}
	}
	return nil
}

func (f *fakeDynamo) ScanPagesWithContext(ctx aws.Context, in *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, _ ...request.Option) error {
	f.mu.Lock()
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var items []map[string]*dynamodb.AttributeValue
	for _, k := range keys {
		items = append(items, f.items[k])
	}
	f.mu.Unlock()

	// Two items per page.
	for start := 0; start < len(items) || start == 0; start += 2 {
		end := min(start+2, len(items))
		last := end == len(items)
		if !fn(&dynamodb.ScanOutput{Items: items[start:end]}, last) || last {
			break
		}
	}
	return nil
}

func quietLogger() log.FieldLogger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDynamo(t *testing.T) {
	tabletest.Run(t, func(t *testing.T) table.Table {
		return New(newFakeDynamo(), "", WithLogger(quietLogger()))
	})
}

func TestEnsure_CreatesIndex(t *testing.T) {
	fake := newFakeDynamo()
	tbl := New(fake, "papers", WithCapacity(7, 3), WithLogger(quietLogger()))
	if _, err := tbl.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	in := fake.created
	if aws.StringValue(in.TableName) != "papers" {
		t.Errorf("TableName = %s", aws.StringValue(in.TableName))
	}
	if len(in.GlobalSecondaryIndexes) != 1 {
		t.Fatalf("GlobalSecondaryIndexes = %d, want 1", len(in.GlobalSecondaryIndexes))
	}
	gsi := in.GlobalSecondaryIndexes[0]
	if aws.StringValue(gsi.IndexName) != table.IndexName {
		t.Errorf("IndexName = %s", aws.StringValue(gsi.IndexName))
	}
	var keys []string
	for _, k := range gsi.KeySchema {
		keys = append(keys, aws.StringValue(k.AttributeName)+":"+aws.StringValue(k.KeyType))
	}
	if diff := cmp.Diff([]string{"primary_category:HASH", "update_date:RANGE"}, keys); diff != "" {
		t.Errorf("index key schema mismatch (-want +got):\n%s", diff)
	}
	if aws.Int64Value(in.ProvisionedThroughput.ReadCapacityUnits) != 7 ||
		aws.Int64Value(gsi.ProvisionedThroughput.WriteCapacityUnits) != 3 {
		t.Errorf("throughput = %v / %v", in.ProvisionedThroughput, gsi.ProvisionedThroughput)
	}
}

func TestEnsure_Errors(t *testing.T) {
	t.Run("describe failure is fatal", func(t *testing.T) {
		fake := newFakeDynamo()
		fake.describeErr = awserr.New("AccessDeniedException", "denied", nil)
		if _, err := New(fake, "", WithLogger(quietLogger())).Ensure(context.Background()); err == nil {
			t.Error("Ensure() succeeded, want error")
		}
		if fake.created != nil {
			t.Error("table created after a failed describe")
		}
	})
	t.Run("never active", func(t *testing.T) {
		fake := newFakeDynamo()
		fake.waitErr = errors.New("timed out")
		_, err := New(fake, "", WithLogger(quietLogger())).Ensure(context.Background())
		if !errors.Is(err, table.ErrTableNotReady) {
			t.Errorf("Ensure() error = %v, want ErrTableNotReady", err)
		}
	})
}

func TestAttributes(t *testing.T) {
	it := item.Item{
		"paper_id":      "0704.0001",
		"version_count": item.Number("2"),
		"is_published":  false,
		"categories":    []any{"hep-ph"},
		"authors":       []any{map[string]any{"last_name": "Balázs", "first_name": "C."}},
	}
	attrs, err := toAttributes(it)
	if err != nil {
		t.Fatalf("toAttributes() error = %v", err)
	}
	if aws.StringValue(attrs["version_count"].N) != "2" {
		t.Errorf("version_count = %v, want N 2", attrs["version_count"])
	}
	if diff := cmp.Diff(it, fromAttributes(attrs)); diff != "" {
		t.Errorf("fromAttributes(toAttributes()) mismatch (-want +got):\n%s", diff)
	}

	if _, err := toAttributes(item.Item{"bad": 1.5}); !errors.Is(err, item.ErrUnsupportedType) {
		t.Errorf("toAttributes() error = %v, want ErrUnsupportedType", err)
	}
}
