// FilePath: internal/repository/mongodb/mongodb.metadata.go
package mongodb

import (
	"context"
	stderrors "errors"

	"github.com/itsatony/sensorhub/internal/errors"
	"github.com/itsatony/sensorhub/internal/geo"
	"github.com/itsatony/sensorhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MetadataRepo stores one metadata document per sensor, keyed by name
type MetadataRepo struct {
	coll *mongo.Collection
}

func NewMetadataRepository(coll *mongo.Collection) *MetadataRepo {
	return &MetadataRepo{coll: coll}
}

// EnsureIndexes creates the unique name index and the coordinate index
func (r *MetadataRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("name_unique"),
		},
		{
			Keys:    bson.D{{Key: "latitude", Value: 1}, {Key: "longitude", Value: 1}},
			Options: options.Index().SetName("lat_lon"),
		},
	})
	if err != nil {
		return errors.NewDatabaseError("failed to create metadata indexes", err)
	}
	nuts.L.Debugf("[MetadataRepo] Indexes ready on %s", r.coll.Name())
	return nil
}

func (r *MetadataRepo) Insert(ctx context.Context, meta *models.SensorMetadata) error {
	if _, err := r.coll.InsertOne(ctx, meta); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.NewConflictError("metadata for sensor name already exists", err)
		}
		return errors.NewDatabaseError("failed to insert metadata", err)
	}
	return nil
}

func (r *MetadataRepo) FindByName(ctx context.Context, name string) (*models.SensorMetadata, error) {
	meta := &models.SensorMetadata{}
	err := r.coll.FindOne(ctx, bson.M{"name": name}).Decode(meta)
	if err != nil {
		if stderrors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.NewNotFoundError("metadata not found", err)
		}
		return nil, errors.NewDatabaseError("failed to get metadata", err)
	}
	return meta, nil
}

// FindInBox returns every document whose coordinates fall inside the box
func (r *MetadataRepo) FindInBox(ctx context.Context, box geo.BoundingBox) ([]*models.SensorMetadata, error) {
	return r.find(ctx, BoxFilter(box))
}

func (r *MetadataRepo) FindAll(ctx context.Context) ([]*models.SensorMetadata, error) {
	return r.find(ctx, bson.M{})
}

func (r *MetadataRepo) find(ctx context.Context, filter bson.M) ([]*models.SensorMetadata, error) {
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, errors.NewDatabaseError("failed to query metadata", err)
	}

	docs := []*models.SensorMetadata{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.NewDatabaseError("failed to decode metadata", err)
	}
	return docs, nil
}

func (r *MetadataRepo) DeleteByName(ctx context.Context, name string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"name": name})
	if err != nil {
		return errors.NewDatabaseError("failed to delete metadata", err)
	}
	if result.DeletedCount == 0 {
		return errors.NewNotFoundError("metadata not found", nil)
	}
	return nil
}

func (r *MetadataRepo) Ping(ctx context.Context) error {
	if err := r.coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return errors.NewDatabaseError("failed to ping mongodb", err)
	}
	return nil
}

// BoxFilter translates a bounding box into an inclusive range query. A box
// split at the antimeridian becomes an $or over its longitude ranges.
func BoxFilter(box geo.BoundingBox) bson.M {
	filter := bson.M{
		"latitude": bson.M{"$gte": box.Latitude.Min, "$lte": box.Latitude.Max},
	}
	if box.FullLongitude() {
		return filter
	}

	switch len(box.Longitude) {
	case 0:
		// nothing can match an empty longitude set
		filter["longitude"] = bson.M{"$in": bson.A{}}
	case 1:
		filter["longitude"] = lonRange(box.Longitude[0])
	default:
		or := bson.A{}
		for _, rng := range box.Longitude {
			or = append(or, bson.M{"longitude": lonRange(rng)})
		}
		filter["$or"] = or
	}
	return filter
}

func lonRange(rng geo.Range) bson.M {
	return bson.M{"$gte": rng.Min, "$lte": rng.Max}
}
