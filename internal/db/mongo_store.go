package db

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/soaringjerry/evibench/internal/api"
	"github.com/soaringjerry/evibench/internal/logger"
	"github.com/soaringjerry/evibench/internal/models"
	"github.com/soaringjerry/evibench/internal/services"
)

const (
	questionsCollection = "evibench"
	usersCollection     = "users"
	responsesCollection = "responses"
)

// questionDoc is the flat shape the seeding script writes.
type questionDoc struct {
	QID        int    `bson:"QID"`
	Email      string `bson:"Email"`
	Qtopic     string `bson:"Qtopic"`
	Question   string `bson:"Question"`
	Answer1    string `bson:"Answer1"`
	Answer2    string `bson:"Answer2"`
	Answer3    string `bson:"Answer3"`
	Answer4    string `bson:"Answer4"`
	Reference1 string `bson:"Reference1"`
	Reference2 string `bson:"Reference2"`
	Reference3 string `bson:"Reference3"`
	Reference4 string `bson:"Reference4"`
}

func toQuestionDoc(q models.QuestionRecord) questionDoc {
	return questionDoc{
		QID: q.QID, Email: q.Email, Qtopic: q.Topic, Question: q.Question,
		Answer1: q.Answers[0], Answer2: q.Answers[1], Answer3: q.Answers[2], Answer4: q.Answers[3],
		Reference1: q.References[0], Reference2: q.References[1], Reference3: q.References[2], Reference4: q.References[3],
	}
}

// questionFromRaw reads a seeded row. Rows written by a dataframe export
// carry NaN doubles for empty cells and numbers for numeric-looking text, so
// every text field is read leniently. ok is false when QID is unusable.
func questionFromRaw(raw bson.Raw) (models.QuestionRecord, bool) {
	qid, ok := intField(raw, "QID")
	if !ok {
		return models.QuestionRecord{}, false
	}
	rec := models.QuestionRecord{
		QID:      qid,
		Email:    textField(raw, "Email"),
		Topic:    textField(raw, "Qtopic"),
		Question: textField(raw, "Question"),
	}
	for i := 0; i < 4; i++ {
		rec.Answers[i] = textField(raw, "Answer"+strconv.Itoa(i+1))
		rec.References[i] = textField(raw, "Reference"+strconv.Itoa(i+1))
	}
	return rec, true
}

func textField(raw bson.Raw, key string) string {
	v, err := raw.LookupErr(key)
	if err != nil {
		return ""
	}
	switch v.Type {
	case bsontype.String:
		return v.StringValue()
	case bsontype.Double:
		f := v.Double()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return ""
		}
		return strconv.FormatFloat(f, 'f', -1, 64)
	case bsontype.Int32:
		return strconv.Itoa(int(v.Int32()))
	case bsontype.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	}
	return ""
}

func intField(raw bson.Raw, key string) (int, bool) {
	v, err := raw.LookupErr(key)
	if err != nil {
		return 0, false
	}
	switch v.Type {
	case bsontype.Int32:
		return int(v.Int32()), true
	case bsontype.Int64:
		return int(v.Int64()), true
	case bsontype.Double:
		f := v.Double()
		if math.IsNaN(f) || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case bsontype.String:
		n, err := strconv.Atoi(v.StringValue())
		return n, err == nil
	}
	return 0, false
}

type MongoStore struct {
	client    *mongo.Client
	questions *mongo.Collection
	users     *mongo.Collection
	responses *mongo.Collection
	log       *logger.Logger
}

var _ api.Store = (*MongoStore)(nil)

// OpenMongo connects, pings and ensures indexes. An index that cannot be
// built over legacy data is logged and skipped.
func OpenMongo(ctx context.Context, uri, database string, log *logger.Logger) (*MongoStore, error) {
	if log == nil {
		log = logger.Nop()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	s := &MongoStore{
		client:    client,
		questions: db.Collection(questionsCollection),
		users:     db.Collection(usersCollection),
		responses: db.Collection(responsesCollection),
		log:       log,
	}
	for _, err := range s.EnsureIndexes(ctx) {
		log.Warn("mongo index not created", "error", err)
	}
	return s, nil
}

// EnsureIndexes creates the uniqueness indexes and returns one error per
// index that failed.
func (s *MongoStore) EnsureIndexes(ctx context.Context) []error {
	unique := options.Index().SetUnique(true)
	specs := []struct {
		coll  *mongo.Collection
		model mongo.IndexModel
	}{
		{s.questions, mongo.IndexModel{Keys: bson.D{{Key: "QID", Value: 1}}, Options: unique}},
		{s.questions, mongo.IndexModel{Keys: bson.D{{Key: "Email", Value: 1}}}},
		{s.users, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique}},
		{s.responses, mongo.IndexModel{Keys: bson.D{{Key: "email", Value: 1}, {Key: "qid", Value: 1}}, Options: unique}},
	}
	var errs []error
	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateOne(ctx, spec.model); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", spec.coll.Name(), err))
		}
	}
	return errs
}

func mapMongoErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return services.ErrDuplicate
	}
	return err
}

func (s *MongoStore) ListQuestions(ctx context.Context) ([]models.QuestionRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "QID", Value: 1}}).SetProjection(bson.M{"_id": 0})
	cur, err := s.questions.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.QuestionRecord
	skipped := 0
	for cur.Next(ctx) {
		rec, ok := questionFromRaw(cur.Current)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if skipped > 0 {
		s.log.Warn("skipped questions without a usable QID", "count", skipped)
	}
	return out, nil
}

func questionDocs(recs []models.QuestionRecord) []interface{} {
	docs := make([]interface{}, 0, len(recs))
	for _, q := range recs {
		docs = append(docs, toQuestionDoc(q))
	}
	return docs
}

// ReplaceQuestions clears the collection and inserts recs. Without a replica
// set this is two separate writes.
func (s *MongoStore) ReplaceQuestions(ctx context.Context, recs []models.QuestionRecord) error {
	if _, err := s.questions.DeleteMany(ctx, bson.M{}); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	_, err := s.questions.InsertMany(ctx, questionDocs(recs))
	return mapMongoErr(err)
}

func (s *MongoStore) AppendQuestions(ctx context.Context, recs []models.QuestionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := s.questions.InsertMany(ctx, questionDocs(recs))
	return mapMongoErr(err)
}

func (s *MongoStore) FindLogin(ctx context.Context, email string) (*models.LoginRecord, error) {
	var rec models.LoginRecord
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find login: %w", err)
	}
	return &rec, nil
}

func (s *MongoStore) InsertLogin(ctx context.Context, rec *models.LoginRecord) error {
	_, err := s.users.InsertOne(ctx, rec)
	return mapMongoErr(err)
}

func (s *MongoStore) ListCompletedQIDs(ctx context.Context, email string) ([]int, error) {
	vals, err := s.responses.Distinct(ctx, "qid", bson.M{"email": email})
	if err != nil {
		return nil, fmt.Errorf("distinct qid: %w", err)
	}
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		switch n := v.(type) {
		case int32:
			out = append(out, int(n))
		case int64:
			out = append(out, int(n))
		case float64:
			out = append(out, int(n))
		}
	}
	return out, nil
}

type responseDoc struct {
	ID                        string `bson:"_id"`
	models.AnnotationResponse `bson:",inline"`
}

func (s *MongoStore) InsertResponse(ctx context.Context, doc *models.AnnotationResponse) error {
	_, err := s.responses.InsertOne(ctx, responseDoc{ID: doc.ID, AnnotationResponse: *doc})
	return mapMongoErr(err)
}

func (s *MongoStore) ListResponses(ctx context.Context) ([]models.AnnotationResponse, error) {
	cur, err := s.responses.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find responses: %w", err)
	}
	defer cur.Close(ctx)
	var out []models.AnnotationResponse
	for cur.Next(ctx) {
		var doc models.AnnotationResponse
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		doc.ID = rawID(cur.Current.Lookup("_id"))
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}

// rawID renders string ids as-is and legacy ObjectIDs as hex.
func rawID(v bson.RawValue) string {
	if s, ok := v.StringValueOK(); ok {
		return s
	}
	if oid, ok := v.ObjectIDOK(); ok {
		return oid.Hex()
	}
	return ""
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
