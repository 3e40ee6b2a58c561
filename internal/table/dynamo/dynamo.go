// Package dynamo is a Table backed by Amazon DynamoDB.
package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	log "github.com/sirupsen/logrus"

	"github.com/paperflow/arxetl/internal/item"
	"github.com/paperflow/arxetl/internal/table"
)

// Table is a DynamoDB paper table.
type Table struct {
	client     dynamodbiface.DynamoDBAPI
	name       string
	readUnits  int64
	writeUnits int64
	log        log.FieldLogger
}

// Option configures a Table.
type Option func(*Table)

// WithCapacity sets the provisioned read and write units of the table and
// its index.
func WithCapacity(read, write int64) Option {
	return func(t *Table) {
		if read > 0 {
			t.readUnits = read
		}
		if write > 0 {
			t.writeUnits = write
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(t *Table) { t.log = l }
}

// New wraps an existing client.
func New(client dynamodbiface.DynamoDBAPI, name string, opts ...Option) *Table {
	if name == "" {
		name = table.DefaultName
	}
	t := &Table{
		client:     client,
		name:       name,
		readUnits:  table.DefaultReadUnits,
		writeUnits: table.DefaultWriteUnits,
		log:        log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open creates a client for region. A non-empty endpoint points the client
// at a local DynamoDB.
func Open(region, endpoint, name string, opts ...Option) (*Table, error) {
	cfg := &aws.Config{Region: aws.String(region)}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return New(dynamodb.New(sess), name, opts...), nil
}

// Close implements table.Table.
func (t *Table) Close() error { return nil }

func (t *Table) throughput() *dynamodb.ProvisionedThroughput {
	return &dynamodb.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(t.readUnits),
		WriteCapacityUnits: aws.Int64(t.writeUnits),
	}
}

// Ensure implements table.Table. Any error from the existence check other
// than a missing table is returned as is.
func (t *Table) Ensure(ctx context.Context) (bool, error) {
	describe := &dynamodb.DescribeTableInput{TableName: aws.String(t.name)}
	_, err := t.client.DescribeTableWithContext(ctx, describe)
	if err == nil {
		t.log.WithField("table", t.name).Debug("table exists")
		return false, nil
	}
	if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return false, fmt.Errorf("describing table %s: %w", t.name, err)
	}

	t.log.WithField("table", t.name).Info("creating table")
	_, err = t.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(t.name),
		KeySchema: []*dynamodb.KeySchemaElement{
			{AttributeName: aws.String(table.KeyAttribute), KeyType: aws.String(dynamodb.KeyTypeHash)},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{AttributeName: aws.String(table.KeyAttribute), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
			{AttributeName: aws.String(table.IndexHashAttr), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
			{AttributeName: aws.String(table.IndexRangeAttr), AttributeType: aws.String(dynamodb.ScalarAttributeTypeS)},
		},
		GlobalSecondaryIndexes: []*dynamodb.GlobalSecondaryIndex{
			{
				IndexName: aws.String(table.IndexName),
				KeySchema: []*dynamodb.KeySchemaElement{
					{AttributeName: aws.String(table.IndexHashAttr), KeyType: aws.String(dynamodb.KeyTypeHash)},
					{AttributeName: aws.String(table.IndexRangeAttr), KeyType: aws.String(dynamodb.KeyTypeRange)},
				},
				Projection:            &dynamodb.Projection{ProjectionType: aws.String(dynamodb.ProjectionTypeAll)},
				ProvisionedThroughput: t.throughput(),
			},
		},
		ProvisionedThroughput: t.throughput(),
	})
	if err != nil {
		return false, fmt.Errorf("creating table %s: %w", t.name, err)
	}

	if err := t.client.WaitUntilTableExistsWithContext(ctx, describe); err != nil {
		return true, fmt.Errorf("%w: %s: %v", table.ErrTableNotReady, t.name, err)
	}
	t.log.WithField("table", t.name).Info("table created")
	return true, nil
}

// Get implements table.Table.
func (t *Table) Get(ctx context.Context, paperID string) (item.Item, error) {
	out, err := t.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(t.name),
		Key: map[string]*dynamodb.AttributeValue{
			table.KeyAttribute: {S: aws.String(paperID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", paperID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return fromAttributes(out.Item), nil
}

// Put implements table.Table.
func (t *Table) Put(ctx context.Context, it item.Item) error {
	key, err := table.KeyOf(it)
	if err != nil {
		return err
	}
	attrs, err := toAttributes(it)
	if err != nil {
		return fmt.Errorf("converting %s: %w", key, err)
	}
	_, err = t.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.name),
		Item:      attrs,
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

// keyCondition builds the index key condition for q.
func keyCondition(q table.CategoryQuery) (string, map[string]*dynamodb.AttributeValue) {
	values := map[string]*dynamodb.AttributeValue{
		":c": {S: aws.String(q.Category)},
	}
	cond := "#c = :c"
	switch {
	case q.From != "" && q.To != "":
		cond += " AND #d BETWEEN :from AND :to"
		values[":from"] = &dynamodb.AttributeValue{S: aws.String(q.From)}
		values[":to"] = &dynamodb.AttributeValue{S: aws.String(q.To)}
	case q.From != "":
		cond += " AND #d >= :from"
		values[":from"] = &dynamodb.AttributeValue{S: aws.String(q.From)}
	case q.To != "":
		cond += " AND #d <= :to"
		values[":to"] = &dynamodb.AttributeValue{S: aws.String(q.To)}
	}
	return cond, values
}

// QueryCategory implements table.Table.
func (t *Table) QueryCategory(ctx context.Context, q table.CategoryQuery) ([]item.Item, error) {
	cond, values := keyCondition(q)
	names := map[string]*string{"#c": aws.String(table.IndexHashAttr)}
	if q.From != "" || q.To != "" {
		names["#d"] = aws.String(table.IndexRangeAttr)
	}
	input := &dynamodb.QueryInput{
		TableName:                 aws.String(t.name),
		IndexName:                 aws.String(table.IndexName),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(!q.Descending),
	}
	if q.Limit > 0 {
		input.Limit = aws.Int64(int64(q.Limit))
	}

	var out []item.Item
	err := t.client.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, last bool) bool {
		for _, attrs := range page.Items {
			out = append(out, fromAttributes(attrs))
			if q.Limit > 0 && len(out) >= q.Limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s for %s: %w", table.IndexName, q.Category, err)
	}
	return out, nil
}

// Scan implements table.Table. Order follows DynamoDB's partition order.
func (t *Table) Scan(ctx context.Context, fn func(item.Item) bool) error {
	err := t.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{TableName: aws.String(t.name)},
		func(page *dynamodb.ScanOutput, last bool) bool {
			for _, attrs := range page.Items {
				if !fn(fromAttributes(attrs)) {
					return false
				}
			}
			return true
		})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", t.name, err)
	}
	return nil
}
