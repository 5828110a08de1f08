package services

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/civicpulse/backend/internal/models"
)

// MongoStore is the production Store. Transactions need a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	issues *mongo.Collection
	users  *mongo.Collection
	banned *mongo.Collection
	locks  *mongo.Collection
}

func NewMongoStore(ctx context.Context, mongoURI, dbName string) (*MongoStore, error) {
	opts := options.Client().ApplyURI(mongoURI)
	if wantsTLS(mongoURI) {
		// Atlas occasionally fails TLS negotiation unless TLS 1.2 is forced.
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	s := &MongoStore{
		client: client,
		db:     db,
		issues: db.Collection("issues"),
		users:  db.Collection("users"),
		banned: db.Collection("banned_emails"),
		locks:  db.Collection("governance_locks"),
	}

	// Lock upserts run inside transactions, so the collection must exist first.
	_ = db.CreateCollection(ctx, "governance_locks")

	// Best-effort indexes, except the unique ones that enforce invariants.
	_, _ = s.issues.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reported_by", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "location.lat", Value: 1}, {Key: "location.lng", Value: 1}}},
		{Keys: bson.D{{Key: "priority_score", Value: -1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("mongo: users email index: %w", err)
	}
	if _, err := s.banned.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return nil, fmt.Errorf("mongo: banned email index: %w", err)
	}

	log.Printf("MongoDB connected: db=%s", dbName)
	return s, nil
}

func wantsTLS(uri string) bool {
	lower := strings.ToLower(uri)
	return strings.HasPrefix(lower, "mongodb+srv://") ||
		strings.Contains(lower, "tls=true") ||
		strings.Contains(lower, "ssl=true")
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	// WithTransaction retries fn on transient errors such as write conflicts.
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	}, txOpts)
	return err
}

func (s *MongoStore) LockSubmitter(ctx context.Context, userID string) error {
	return s.bumpLock(ctx, "submitter:"+userID)
}

func (s *MongoStore) LockCells(ctx context.Context, keys []string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, k := range sorted {
		if err := s.bumpLock(ctx, "cell:"+k); err != nil {
			return err
		}
	}
	return nil
}

// bumpLock writes the lock document so that any other transaction writing
// it before we commit hits a write conflict.
func (s *MongoStore) bumpLock(ctx context.Context, id string) error {
	_, err := s.locks.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"seq": 1}, "$set": bson.M{"touched_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongo: lock %s: %w", id, err)
	}
	return nil
}

// Issues

func boxFilter(box models.GeoBox) bson.M {
	return bson.M{
		"location.lat": bson.M{"$gte": box.MinLat, "$lte": box.MaxLat},
		"location.lng": bson.M{"$gte": box.MinLng, "$lte": box.MaxLng},
	}
}

func issueListFilter(f IssueFilter) bson.M {
	filter := bson.M{}
	if f.ReportedBy != "" {
		filter["reported_by"] = f.ReportedBy
	}
	if f.UnresolvedOnly {
		filter["status"] = bson.M{"$ne": models.StatusResolved}
	}
	return filter
}

var issueOrder = bson.D{{Key: "priority_score", Value: -1}, {Key: "created_at", Value: -1}}

func (s *MongoStore) LatestIssueBy(ctx context.Context, userID string) (*models.Issue, error) {
	var out models.Issue
	err := s.issues.FindOne(ctx,
		bson.M{"reported_by": userID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}}),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) CountIssuesSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return s.issues.CountDocuments(ctx, bson.M{
		"reported_by": userID,
		"created_at":  bson.M{"$gte": since},
	})
}

func (s *MongoStore) CountIssuesInBox(ctx context.Context, box models.GeoBox) (int64, error) {
	return s.issues.CountDocuments(ctx, boxFilter(box))
}

func (s *MongoStore) CountUnresolved(ctx context.Context) (int64, error) {
	return s.issues.CountDocuments(ctx, issueListFilter(IssueFilter{UnresolvedOnly: true}))
}

func (s *MongoStore) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	cur, err := s.issues.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.StatusCount, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) InsertIssue(ctx context.Context, issue *models.Issue) error {
	_, err := s.issues.InsertOne(ctx, issue)
	return err
}

func (s *MongoStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	var out models.Issue
	err := s.issues.FindOne(ctx, bson.M{"_id": id}).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrIssueNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) ListIssues(ctx context.Context, f IssueFilter) ([]models.Issue, error) {
	opts := options.Find().SetSort(issueOrder)
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cur, err := s.issues.Find(ctx, issueListFilter(f), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.Issue, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) UpdateIssueStatus(ctx context.Context, id string, from []models.IssueStatus, to models.IssueStatus, at time.Time) (*models.Issue, error) {
	var out models.Issue
	err := s.issues.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": bson.M{"status": to, "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missOrConflict(ctx, id, ErrInvalidStatusTransition)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) MarkIssueFlagged(ctx context.Context, id, adminID string, at time.Time) (*models.Issue, error) {
	var out models.Issue
	err := s.issues.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "reported_as_fake": bson.M{"$ne": true}},
		bson.M{"$set": bson.M{
			"reported_as_fake":    true,
			"reported_as_fake_by": adminID,
			"reported_as_fake_at": at,
			"updated_at":          at,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.missOrConflict(ctx, id, ErrAlreadyFlagged)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// missOrConflict explains a conditional update that matched nothing.
func (s *MongoStore) missOrConflict(ctx context.Context, id string, conflict error) error {
	n, err := s.issues.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrIssueNotFound
	}
	return conflict
}

// Users

func (s *MongoStore) CreateUser(ctx context.Context, u *models.User) error {
	c := *u
	c.Email = models.NormalizeEmail(u.Email)
	_, err := s.users.InsertOne(ctx, &c)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailExists
	}
	return err
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var out models.User
	err := s.users.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MongoStore) SetTrustScore(ctx context.Context, id string, score int, at time.Time) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"trust_score": score, "updated_at": at}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *MongoStore) BanSubmitter(ctx context.Context, ban *models.BannedEmail) error {
	c := *ban
	c.Email = models.NormalizeEmail(ban.Email)

	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		// A duplicate-key write error would abort the transaction, so look first.
		n, err := s.banned.CountDocuments(ctx, bson.M{"email": c.Email})
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("[store] %s already banned, keeping existing record", c.Email)
		} else if _, err := s.banned.InsertOne(ctx, &c); err != nil {
			return fmt.Errorf("mongo: insert banned email: %w", err)
		}

		if _, err := s.users.DeleteOne(ctx, bson.M{"_id": c.UserID}); err != nil {
			return fmt.Errorf("mongo: delete user: %w", err)
		}
		return nil
	})
}

func (s *MongoStore) IsEmailBanned(ctx context.Context, email string) (bool, error) {
	n, err := s.banned.CountDocuments(ctx, bson.M{"email": models.NormalizeEmail(email)})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoStore) ListBannedEmails(ctx context.Context) ([]models.BannedEmail, error) {
	cur, err := s.banned.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "banned_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]models.BannedEmail, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
