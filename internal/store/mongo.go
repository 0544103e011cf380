package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"geopark-pipeline/internal/common"
	"geopark-pipeline/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const dateIndexName = "fecha_unique"

// document is the stored shape; field names match the collection written by earlier versions of the job.
type document struct {
	Date      string         `bson:"fecha"`
	Close     float64        `bson:"precio_geo"`
	Volume    int64          `bson:"volumen"`
	Open      float64        `bson:"apertura"`
	High      float64        `bson:"maximo"`
	Low       float64        `bson:"minimo"`
	Benchmark benchmarkValue `bson:"brent"`
	MarketCap string         `bson:"market_cap"`
	Timestamp string         `bson:"timestamp"`
}

// benchmarkValue is written as a double or null. Older documents hold the provider's raw
// string instead, with "." for a missing price.
type benchmarkValue decimal.NullDecimal

func (b benchmarkValue) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if !b.Valid {
		return bson.TypeNull, nil, nil
	}
	return bson.MarshalValue(b.Decimal.InexactFloat64())
}

func (b *benchmarkValue) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	*b = benchmarkValue{}
	rv := bson.RawValue{Type: t, Value: data}
	switch t {
	case bson.TypeNull, bson.TypeUndefined:
	case bson.TypeDouble:
		*b = benchmarkValue(decimal.NewNullDecimal(decimal.NewFromFloat(rv.Double())))
	case bson.TypeInt32:
		*b = benchmarkValue(decimal.NewNullDecimal(decimal.NewFromInt32(rv.Int32())))
	case bson.TypeInt64:
		*b = benchmarkValue(decimal.NewNullDecimal(decimal.NewFromInt(rv.Int64())))
	case bson.TypeString:
		if d, err := decimal.NewFromString(strings.TrimSpace(rv.StringValue())); err == nil {
			*b = benchmarkValue(decimal.NewNullDecimal(d))
		}
	default:
		return fmt.Errorf("brent: unsupported bson type %s", t)
	}
	return nil
}

func toDocument(rec *models.DailyRecord) document {
	doc := document{
		Date:      rec.TradingDate.String(),
		Close:     rec.ClosePrice.InexactFloat64(),
		Volume:    rec.Volume,
		Open:      rec.OpenPrice.InexactFloat64(),
		High:      rec.HighPrice.InexactFloat64(),
		Low:       rec.LowPrice.InexactFloat64(),
		MarketCap: rec.MarketCapString(),
		Timestamp: rec.CapturedAt.Format(time.RFC3339Nano),
		Benchmark: benchmarkValue(rec.BenchmarkPrice),
	}
	return doc
}

func (d document) record() (models.DailyRecord, error) {
	date, err := models.ParseDate(d.Date)
	if err != nil {
		return models.DailyRecord{}, fmt.Errorf("document date: %w", err)
	}
	rec := models.DailyRecord{
		TradingDate: date,
		ClosePrice:  decimal.NewFromFloat(d.Close),
		Volume:      d.Volume,
		OpenPrice:   decimal.NewFromFloat(d.Open),
		HighPrice:   decimal.NewFromFloat(d.High),
		LowPrice:    decimal.NewFromFloat(d.Low),

		BenchmarkPrice: decimal.NullDecimal(d.Benchmark),
	}
	if mc, err := decimal.NewFromString(d.MarketCap); err == nil {
		rec.MarketCapitalization = decimal.NewNullDecimal(mc)
	}
	// older documents carry a python isoformat timestamp without zone
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if ts, err := time.Parse(layout, d.Timestamp); err == nil {
			rec.CapturedAt = ts
			return rec, nil
		}
	}
	return models.DailyRecord{}, fmt.Errorf("document %s: unrecognized timestamp %q", d.Date, d.Timestamp)
}

// MongoStore keeps one document per trading date in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger logrus.FieldLogger
}

func NewMongoStore(ctx context.Context, uri, database, collection string, log logrus.FieldLogger) (*MongoStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, common.New(common.ErrStore, "connect mongodb", err)
	}
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(collection),
		logger: log.WithFields(logrus.Fields{"component": "store", "collection": collection}),
	}, nil
}

func (s *MongoStore) EnsureSchema(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "fecha", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(dateIndexName),
	})
	if err != nil {
		return common.New(common.ErrStore, "create fecha index", err)
	}
	s.logger.Debug("schema ensured")
	return nil
}

func (s *MongoStore) Upsert(ctx context.Context, rec *models.DailyRecord) error {
	doc := toDocument(rec)
	filter := bson.D{{Key: "fecha", Value: doc.Date}}
	opts := options.Replace().SetUpsert(true)

	res, err := s.coll.ReplaceOne(ctx, filter, doc, opts)
	if mongo.IsDuplicateKeyError(err) {
		// two upserts raced on insert; the loser now finds the row and replaces it
		res, err = s.coll.ReplaceOne(ctx, filter, doc, opts)
	}
	if err != nil {
		return common.New(common.ErrStore, "upsert "+doc.Date, err)
	}

	log := s.logger.WithField("date", doc.Date)
	if res.UpsertedCount > 0 {
		log.Info("inserted new document")
	} else {
		log.Info("updated existing document")
	}
	return nil
}

func (s *MongoStore) Range(ctx context.Context, limit int) ([]models.DailyRecord, error) {
	if limit <= 0 {
		return []models.DailyRecord{}, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "fecha", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, common.New(common.ErrStore, "range query", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, common.New(common.ErrStore, "range decode", err)
	}

	recs := make([]models.DailyRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, common.New(common.ErrStore, "range decode", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *MongoStore) Count(ctx context.Context) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, common.New(common.ErrStore, "count", err)
	}
	return n, nil
}

func (s *MongoStore) Latest(ctx context.Context) (*models.DailyRecord, error) {
	var doc document
	opts := options.FindOne().SetSort(bson.D{{Key: "fecha", Value: -1}})
	err := s.coll.FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, common.New(common.ErrStore, "latest document", err)
	}
	rec, err := doc.record()
	if err != nil {
		return nil, common.New(common.ErrStore, "latest document", err)
	}
	return &rec, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return common.New(common.ErrStore, "ping mongodb", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return common.New(common.ErrStore, "disconnect mongodb", err)
	}
	return nil
}
