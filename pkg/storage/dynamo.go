package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoStorage implements Storage on a DynamoDB table whose partition key is
// the parent directory of a path ("dir") and whose sort key is the file name
// ("name"). Listing a prefix is a single Query on the partition. Files at the
// root live under rootDir since key attributes cannot be empty.
type DynamoStorage struct {
	client *dynamodb.Client
	table  string
}

type dynamoItem struct {
	Dir  string `dynamodbav:"dir"`
	Name string `dynamodbav:"name"`
	Data []byte `dynamodbav:"data"`
}

func NewDynamoStorage(ctx context.Context, table, region, endpoint string) (*DynamoStorage, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamodb table is required")
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &DynamoStorage{client: client, table: table}, nil
}

const rootDir = "/"

func splitPath(p string) (string, string) {
	p = strings.Trim(path.Clean("/"+p), "/")
	dir, name := path.Split(p)
	return dirKey(strings.TrimSuffix(dir, "/")), name
}

func dirKey(dir string) string {
	if dir == "" {
		return rootDir
	}
	return dir
}

func (s *DynamoStorage) itemKey(p string) map[string]types.AttributeValue {
	dir, name := splitPath(p)
	return map[string]types.AttributeValue{
		"dir":  &types.AttributeValueMemberS{Value: dir},
		"name": &types.AttributeValueMemberS{Value: name},
	}
}

func (s *DynamoStorage) Read(ctx context.Context, p string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.itemKey(p),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from dynamodb: %w", p, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p, err)
	}
	return item.Data, nil
}

func (s *DynamoStorage) Write(ctx context.Context, p string, data []byte) error {
	dir, name := splitPath(p)
	item, err := attributevalue.MarshalMap(dynamoItem{Dir: dir, Name: name, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", p, err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("failed to write %s to dynamodb: %w", p, err)
	}
	return nil
}

func (s *DynamoStorage) Delete(ctx context.Context, p string) error {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          s.itemKey(p),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from dynamodb: %w", p, err)
	}
	if len(out.Attributes) == 0 {
		return fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return nil
}

func (s *DynamoStorage) List(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.Trim(path.Clean("/"+prefix), "/")
	var paths []string
	p := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("#d = :dir"),
		ExpressionAttributeNames: map[string]string{
			"#d": "dir",
			"#n": "name",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dir": &types.AttributeValueMemberS{Value: dirKey(dir)},
		},
		ProjectionExpression: aws.String("#n"),
		ConsistentRead:       aws.Bool(true),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s in dynamodb: %w", prefix, err)
		}
		for _, raw := range out.Items {
			var item dynamoItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, fmt.Errorf("failed to decode list entry: %w", err)
			}
			paths = append(paths, strings.TrimPrefix(dir+"/"+item.Name, "/"))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *DynamoStorage) Exists(ctx context.Context, p string) (bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:            aws.String(s.table),
		Key:                  s.itemKey(p),
		ProjectionExpression: aws.String("#n"),
		ExpressionAttributeNames: map[string]string{
			"#n": "name",
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check %s in dynamodb: %w", p, err)
	}
	return out.Item != nil, nil
}
