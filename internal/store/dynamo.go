package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/spacesedan/karmatrack/internal/models"
)

const (
	POSTED_LOG_TABLE = "PostedLog"
	PROFILES_TABLE   = "SubredditProfiles"
)

// DynamoStore is the DynamoDB-backed Store, selected with
// TRACKER_STORE_BACKEND=dynamodb. The flat-file layout stays the default;
// this backend exists because nothing above the Store interface should
// care where the collections live. Insertion order is recovered by
// sorting on posted_at since a scan has no natural order.
type DynamoStore struct {
	client *dynamodb.Client
}

func NewDynamoStore(client *dynamodb.Client) *DynamoStore {
	return &DynamoStore{client: client}
}

func (s *DynamoStore) Append(ctx context.Context, rec models.PostRecord) (models.PostRecord, error) {
	recs, err := s.List(ctx)
	if err != nil {
		return models.PostRecord{}, err
	}
	for _, existing := range recs {
		if existing.URL == rec.URL {
			return models.PostRecord{}, fmt.Errorf("%w: %s", ErrDuplicateURL, rec.URL)
		}
	}
	if rec.Status == "" {
		rec.Status = models.StatusActive
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return models.PostRecord{}, fmt.Errorf("[DynamoStore] failed to marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(POSTED_LOG_TABLE),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(post_id)"),
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return models.PostRecord{}, fmt.Errorf("%w: %s", ErrDuplicateURL, rec.URL)
		}
		return models.PostRecord{}, fmt.Errorf("[DynamoStore] failed to put record: %w", err)
	}
	return rec, nil
}

func (s *DynamoStore) List(ctx context.Context) ([]models.PostRecord, error) {
	var recs []models.PostRecord

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(POSTED_LOG_TABLE),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoStore] scan for records failed: %w", err)
		}
		var page []models.PostRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			slog.Error("[DynamoStore] unable to unmarshal record page",
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		recs = append(recs, page...)
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].PostedAt.Equal(recs[j].PostedAt) {
			return recs[i].PostID < recs[j].PostID
		}
		return recs[i].PostedAt.Before(recs[j].PostedAt)
	})
	return recs, nil
}

func (s *DynamoStore) UpdateMetrics(ctx context.Context, postID string, m models.PostMetrics, checkedAt time.Time) error {
	rec, err := s.getRecord(ctx, postID)
	if err != nil {
		return err
	}

	score, ratio, comments := m.Score, m.UpvoteRatio, m.NumComments
	rec.Score = &score
	rec.UpvoteRatio = &ratio
	rec.NumComments = &comments
	checked := checkedAt
	rec.LastChecked = &checked
	if rec.Title == "" && m.Title != "" {
		rec.Title = m.Title
	}
	return s.putRecord(ctx, rec)
}

func (s *DynamoStore) MarkUnreachable(ctx context.Context, postID string) error {
	rec, err := s.getRecord(ctx, postID)
	if err != nil {
		return err
	}
	rec.Status = models.StatusUnreachable
	return s.putRecord(ctx, rec)
}

func (s *DynamoStore) UpsertProfile(ctx context.Context, p models.SubredditProfile) error {
	if p.LastUpdated.IsZero() {
		p.LastUpdated = time.Now().UTC()
	}
	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("[DynamoStore] failed to marshal profile: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(PROFILES_TABLE),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("[DynamoStore] failed to put profile: %w", err)
	}
	return nil
}

func (s *DynamoStore) Profiles(ctx context.Context) ([]models.SubredditProfile, error) {
	var profiles []models.SubredditProfile

	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName: aws.String(PROFILES_TABLE),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("[DynamoStore] scan for profiles failed: %w", err)
		}
		var page []models.SubredditProfile
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
		}
		profiles = append(profiles, page...)
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].Subreddit < profiles[j].Subreddit
	})
	return profiles, nil
}

func (s *DynamoStore) getRecord(ctx context.Context, postID string) (models.PostRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(POSTED_LOG_TABLE),
		Key: map[string]types.AttributeValue{
			"post_id": &types.AttributeValueMemberS{Value: postID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return models.PostRecord{}, fmt.Errorf("[DynamoStore] failed to get record: %w", err)
	}
	if len(out.Item) == 0 {
		return models.PostRecord{}, fmt.Errorf("%w: %s", ErrNotFound, postID)
	}
	var rec models.PostRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return models.PostRecord{}, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	return rec, nil
}

func (s *DynamoStore) putRecord(ctx context.Context, rec models.PostRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("[DynamoStore] failed to marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(POSTED_LOG_TABLE),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("[DynamoStore] failed to put record: %w", err)
	}
	return nil
}
